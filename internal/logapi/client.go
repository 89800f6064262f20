// Package logapi fetches telemetry records from the sensor log service.
package logapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/flowcal/internal/flowlog"
	"github.com/banshee-data/flowcal/internal/httputil"
	"github.com/banshee-data/flowcal/internal/monitoring"
)

// DefaultBaseURL is the log endpoint the flow sensor publishes to.
const DefaultBaseURL = "https://laica.ifrn.edu.br/access-ng/log"

// Sort orders understood by the log service.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

var logf = monitoring.Tagged("logapi")

// Params selects a page of log records.
type Params struct {
	Previous int
	Next     int
	PageSize int
	Topic    string
	Type     string
	Order    string
}

// DefaultParams returns the query the flow monitor has always used: one
// page of 60 INFO records from the monitoramento_FF topic, newest first.
func DefaultParams() Params {
	return Params{
		Previous: 0,
		Next:     1,
		PageSize: 60,
		Topic:    "monitoramento_FF",
		Type:     "INFO",
		Order:    OrderDesc,
	}
}

// Validate checks the parameters before a request is built.
func (p Params) Validate() error {
	if p.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", p.PageSize)
	}
	if p.Previous < 0 || p.Next < 0 {
		return fmt.Errorf("page cursors must be non-negative, got previous=%d next=%d", p.Previous, p.Next)
	}
	switch strings.ToLower(p.Order) {
	case "", OrderAsc, OrderDesc:
	default:
		return fmt.Errorf("unsupported order %q: expected %q or %q", p.Order, OrderAsc, OrderDesc)
	}
	return nil
}

// Query renders the parameters as URL query values.
func (p Params) Query() url.Values {
	q := url.Values{}
	q.Set("previous", strconv.Itoa(p.Previous))
	q.Set("next", strconv.Itoa(p.Next))
	q.Set("pageSize", strconv.Itoa(p.PageSize))
	if p.Topic != "" {
		q.Set("topic", p.Topic)
	}
	if p.Type != "" {
		q.Set("type", p.Type)
	}
	if p.Order != "" {
		q.Set("order", strings.ToLower(p.Order))
	}
	return q
}

// TransportError wraps any failure to retrieve or decode a page.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("log fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client retrieves log records over HTTP.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a client for baseURL using h, or http.DefaultClient
// when h is nil.
func NewClient(baseURL string, h httputil.HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: baseURL, HTTP: h}
}

// Fetch returns one page of records exactly as the service ordered them.
// Any network, status or decoding failure is returned as *TransportError.
func (c *Client) Fetch(ctx context.Context, p Params) ([]flowlog.LogRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", c.BaseURL, err)
	}
	q := u.Query()
	for k, v := range p.Query() {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	var records []flowlog.LogRecord
	if err := httputil.GetJSON(ctx, c.HTTP, u.String(), &records); err != nil {
		return nil, &TransportError{URL: u.String(), Err: err}
	}
	return records, nil
}

// FetchChronological fetches a page and returns it oldest first, which is
// the order the estimator must see.
func (c *Client) FetchChronological(ctx context.Context, p Params) ([]flowlog.LogRecord, error) {
	records, err := c.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(p.Order, OrderDesc) {
		Reverse(records)
	}
	return records, nil
}

// FetchOrEmpty is FetchChronological that logs a transport failure and
// reports no records instead, leaving the caller to take its empty-input
// path. Parameter errors are still returned.
func (c *Client) FetchOrEmpty(ctx context.Context, p Params) ([]flowlog.LogRecord, error) {
	records, err := c.FetchChronological(ctx, p)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			logf("failed to fetch log: %v", err)
			return nil, nil
		}
		return nil, err
	}
	logf("fetched %d records", len(records))
	for i, rec := range records {
		if i >= 3 {
			break
		}
		logf("record %d: %s", i+1, rec.Message)
	}
	return records, nil
}

// Reverse reverses records in place.
func Reverse(records []flowlog.LogRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
