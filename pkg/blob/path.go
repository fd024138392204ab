package blob

import (
	"fmt"
	"strings"
	"time"
)

// ObjectPath builds <domain>/source=<source>/ingest_date=<YYYY-MM-DD>/<label>_page=<00000>.jsonl
func ObjectPath(domain, source string, ingestDate time.Time, label string, index int) string {
	return fmt.Sprintf("%s/source=%s/ingest_date=%s/%s_page=%05d.jsonl",
		strings.Trim(domain, "/"),
		source,
		ingestDate.UTC().Format("2006-01-02"),
		label,
		index,
	)
}
