package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// SocrataRequest is one request the fake endpoint received
type SocrataRequest struct {
	Where  string
	Order  string
	Limit  int
	Offset int
	Token  string
}

// FakeSocrata serves scripted pages in request order. A page may be replaced
// by an HTTP status to simulate a failure; requests past the script get [].
type FakeSocrata struct {
	Server *httptest.Server

	mu       sync.Mutex
	pages    [][]map[string]any
	failures map[int]int
	requests []SocrataRequest
}

// NewFakeSocrata starts a fake endpoint serving pages. It is closed when the test completes.
func NewFakeSocrata(t *testing.T, pages ...[]map[string]any) *FakeSocrata {
	t.Helper()

	f := &FakeSocrata{
		pages:    pages,
		failures: make(map[int]int),
	}

	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)

	return f
}

// URL returns the resource URL
func (f *FakeSocrata) URL() string {
	return f.Server.URL + "/resource/erm2-nwe9.json"
}

// FailRequest makes the nth request (zero-based) respond with status
func (f *FakeSocrata) FailRequest(n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[n] = status
}

// Requests returns a copy of every request received so far
func (f *FakeSocrata) Requests() []SocrataRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]SocrataRequest, len(f.requests))
	copy(out, f.requests)

	return out
}

func (f *FakeSocrata) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("$limit"))
	offset, _ := strconv.Atoi(q.Get("$offset"))

	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, SocrataRequest{
		Where:  q.Get("$where"),
		Order:  q.Get("$order"),
		Limit:  limit,
		Offset: offset,
		Token:  r.Header.Get("X-App-Token"),
	})
	status, fail := f.failures[n]

	var page []map[string]any
	if n < len(f.pages) {
		page = f.pages[n]
	}
	f.mu.Unlock()

	if fail {
		http.Error(w, `{"error":"scripted failure"}`, status)
		return
	}

	if page == nil {
		page = []map[string]any{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

// Rows builds n rows whose created_date starts at base and increases by one hour
func Rows(base string, n int) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := range n {
		rows = append(rows, map[string]any{
			"unique_key":   strconv.Itoa(i),
			"created_date": shiftHours(base, i),
		})
	}

	return rows
}

func shiftHours(base string, hours int) string {
	t, err := time.Parse("2006-01-02T15:04:05", base)
	if err != nil {
		panic(err)
	}

	return t.Add(time.Duration(hours) * time.Hour).Format("2006-01-02T15:04:05.000")
}
