package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/observability"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSourceRequest marks any failed request against the source API
	ErrSourceRequest = errors.New("source request failed")
)

// maxErrorBody bounds how much of a failed response is kept in the error
const maxErrorBody = 512

// RequestError is a non-success response from the source API
type RequestError struct {
	StatusCode int
	Offset     int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: status %d at offset %d: %s", ErrSourceRequest, e.StatusCode, e.Offset, e.Body)
}

// Unwrap lets errors.Is match ErrSourceRequest
func (e *RequestError) Unwrap() error {
	return ErrSourceRequest
}

// Query is one page request
type Query struct {
	Where  string
	Order  string
	Limit  int
	Offset int
}

// Values encodes the query as SoQL parameters
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("$where", q.Where)
	v.Set("$limit", strconv.Itoa(q.Limit))
	v.Set("$offset", strconv.Itoa(q.Offset))
	v.Set("$order", q.Order)

	return v
}

// ClientInterface fetches one page of rows
type ClientInterface interface {
	// FetchPage returns the raw row objects for a query; an empty slice means no more data
	FetchPage(ctx context.Context, q Query) ([]json.RawMessage, error)
}

type client struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	baseURL    string
	token      string
	authScheme string
	timeout    time.Duration
}

// NewClient creates an HTTP client for the dataset endpoint
func NewClient(log logrus.FieldLogger, cfg *Config, httpClient *http.Client) (ClientInterface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.SetDefaults()

	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 0, // per-request deadlines
		}
	}

	return &client{
		log:        log.WithField("component", "source-http"),
		httpClient: httpClient,
		baseURL:    cfg.URL,
		token:      cfg.Token,
		authScheme: cfg.AuthScheme,
		timeout:    cfg.RequestTimeout,
	}, nil
}

func (c *client) FetchPage(ctx context.Context, q Query) ([]json.RawMessage, error) {
	rows, err := c.fetchPage(ctx, q)
	if err != nil {
		observability.RecordSourceRequest("error")
		return nil, err
	}

	observability.RecordSourceRequest("success")

	return rows, nil
}

func (c *client) fetchPage(ctx context.Context, q Query) ([]json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL
	if strings.Contains(target, "?") {
		target += "&" + q.Values().Encode()
	} else {
		target += "?" + q.Values().Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrSourceRequest, err)
	}

	req.Header.Set("Accept", "application/json")
	c.applyAuth(req)

	c.log.WithFields(logrus.Fields{
		"offset": q.Offset,
		"limit":  q.Limit,
	}).Debug("Requesting page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: offset %d: %w", ErrSourceRequest, q.Offset, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response at offset %d: %w", ErrSourceRequest, q.Offset, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "... (truncated)"
		}

		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Offset:     q.Offset,
			Body:       msg,
		}
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response at offset %d: %w", ErrSourceRequest, q.Offset, err)
	}

	return rows, nil
}

func (c *client) applyAuth(req *http.Request) {
	if c.token == "" {
		return
	}

	if c.authScheme == AuthBearer {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}

	req.Header.Set("X-App-Token", c.token)
}

// Verify interface compliance at compile time
var _ ClientInterface = (*client)(nil)
