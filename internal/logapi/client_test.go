package logapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flowcal/internal/flowlog"
	"github.com/banshee-data/flowcal/internal/httputil"
	"github.com/banshee-data/flowcal/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

const page = `[
	{"message": "freq=3 flow=3 vol=3 f=3 q=3 v=3", "createdAt": "2025-03-14T10:00:03.000Z", "topic": "monitoramento_FF"},
	{"message": "freq=2 flow=2 vol=2 f=2 q=2 v=2", "createdAt": "2025-03-14T10:00:02.000Z"},
	{"message": "freq=1 flow=1 vol=1 f=1 q=1 v=1", "createdAt": "2025-03-14T10:00:01.000Z"}
]`

func TestParamsQuery(t *testing.T) {
	q := DefaultParams().Query()
	assert.Equal(t, "0", q.Get("previous"))
	assert.Equal(t, "1", q.Get("next"))
	assert.Equal(t, "60", q.Get("pageSize"))
	assert.Equal(t, "monitoramento_FF", q.Get("topic"))
	assert.Equal(t, "INFO", q.Get("type"))
	assert.Equal(t, "desc", q.Get("order"))
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"defaults", func(*Params) {}, false},
		{"ascending", func(p *Params) { p.Order = "ASC" }, false},
		{"zero page size", func(p *Params) { p.PageSize = 0 }, true},
		{"negative cursor", func(p *Params) { p.Previous = -1 }, true},
		{"bad order", func(p *Params) { p.Order = "random" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, page)

	c := NewClient("http://logs.local/log?tenant=a", mock)
	records, err := c.Fetch(context.Background(), DefaultParams())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2025-03-14T10:00:03.000Z", records[0].CreatedAt)

	req := mock.GetRequest(0)
	require.NotNil(t, req)
	assert.Equal(t, "logs.local", req.URL.Host)
	assert.Equal(t, "a", req.URL.Query().Get("tenant"))
	assert.Equal(t, "monitoramento_FF", req.URL.Query().Get("topic"))
}

func TestFetchChronological(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, page)
	mock.AddResponse(http.StatusOK, page)

	c := NewClient("http://logs.local/log", mock)
	records, err := c.FetchChronological(context.Background(), DefaultParams())
	require.NoError(t, err)
	got := []string{records[0].CreatedAt, records[1].CreatedAt, records[2].CreatedAt}
	want := []string{"2025-03-14T10:00:01.000Z", "2025-03-14T10:00:02.000Z", "2025-03-14T10:00:03.000Z"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	asc := DefaultParams()
	asc.Order = OrderAsc
	records, err = c.FetchChronological(context.Background(), asc)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14T10:00:03.000Z", records[0].CreatedAt)
}

func TestFetchTransportErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*httputil.MockHTTPClient)
	}{
		{"network", func(m *httputil.MockHTTPClient) { m.AddErrorResponse(errors.New("connection reset")) }},
		{"status", func(m *httputil.MockHTTPClient) { m.AddResponse(http.StatusInternalServerError, "oops") }},
		{"decode", func(m *httputil.MockHTTPClient) { m.AddResponse(http.StatusOK, `{"not":"a list"}`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			tt.setup(mock)
			c := NewClient("http://logs.local/log", mock)

			_, err := c.Fetch(context.Background(), DefaultParams())
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Contains(t, te.URL, "logs.local")

			mock2 := httputil.NewMockHTTPClient()
			tt.setup(mock2)
			records, err := NewClient("http://logs.local/log", mock2).FetchOrEmpty(context.Background(), DefaultParams())
			assert.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestFetchInvalidParams(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	p := DefaultParams()
	p.PageSize = -1

	_, err := NewClient("", mock).FetchOrEmpty(context.Background(), p)
	assert.Error(t, err)
	assert.Zero(t, mock.RequestCount())
}

func TestFetchAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("topic") != "monitoramento_FF" {
			http.Error(w, "unknown topic", http.StatusNotFound)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, []flowlog.LogRecord{
			{Message: "freq=1 flow=2 vol=3 f=4 q=5 v=6", CreatedAt: "2025-03-14T10:00:00.000Z"},
		})
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, srv.Client()).Fetch(context.Background(), DefaultParams())
	require.NoError(t, err)
	require.Len(t, records, 1)
	s, ok := flowlog.ParseMessage(records[0].Message)
	require.True(t, ok)
	assert.Equal(t, 5.0, s.FlowFilt)
}

func TestReverse(t *testing.T) {
	recs := []flowlog.LogRecord{{Message: "a"}, {Message: "b"}, {Message: "c"}}
	Reverse(recs)
	assert.Equal(t, []flowlog.LogRecord{{Message: "c"}, {Message: "b"}, {Message: "a"}}, recs)
	Reverse(nil)
}
