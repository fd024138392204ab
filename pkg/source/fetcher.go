package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Page is one batch of rows returned by a single request
type Page struct {
	Records []json.RawMessage
	Offset  int
	Size    int
	// Index is Offset divided by the page size
	Index int
}

// ErrPacing is returned when waiting for the next request slot is interrupted
var ErrPacing = errors.New("request pacing interrupted")

// Fetcher walks a query window page by page until the source returns nothing.
// It is not safe for concurrent use.
type Fetcher struct {
	log    logrus.FieldLogger
	client ClientInterface
	pacer  Pacer

	where    string
	order    string
	pageSize int
	offset   int
	requests int
	done     bool
}

// NewFetcher creates a fetcher for the given predicate ordered ascending on column
func NewFetcher(log logrus.FieldLogger, client ClientInterface, pacer Pacer, where, column string, pageSize int) *Fetcher {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	if pacer == nil {
		pacer = NoopPacer{}
	}

	return &Fetcher{
		log:      log.WithField("component", "fetcher"),
		client:   client,
		pacer:    pacer,
		where:    where,
		order:    column + " ASC",
		pageSize: pageSize,
	}
}

// Next returns the next page, or nil once the source has returned an empty page.
// Any error is fatal for the run.
func (f *Fetcher) Next(ctx context.Context) (*Page, error) {
	if f.done {
		return nil, nil //nolint:nilnil // exhausted
	}

	// The first wait drains the limiter's initial token, so every later
	// request is held back a full interval
	if err := f.pacer.Wait(ctx); err != nil {
		f.done = true
		return nil, fmt.Errorf("%w: %w", ErrPacing, err)
	}

	q := Query{
		Where:  f.where,
		Order:  f.order,
		Limit:  f.pageSize,
		Offset: f.offset,
	}

	rows, err := f.client.FetchPage(ctx, q)
	f.requests++

	if err != nil {
		f.done = true
		return nil, err
	}

	if len(rows) == 0 {
		f.done = true
		f.log.WithFields(logrus.Fields{
			"offset":   f.offset,
			"requests": f.requests,
		}).Debug("Empty page, pagination complete")

		return nil, nil //nolint:nilnil // end of data
	}

	page := &Page{
		Records: rows,
		Offset:  f.offset,
		Size:    len(rows),
		Index:   f.offset / f.pageSize,
	}

	f.offset += f.pageSize

	return page, nil
}

// PageSize returns the effective $limit
func (f *Fetcher) PageSize() int {
	return f.pageSize
}

// Requests returns how many requests have been issued so far
func (f *Fetcher) Requests() int {
	return f.requests
}
