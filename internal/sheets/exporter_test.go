package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetwise/internal/core"
)

type fakeSheets struct {
	mu       sync.Mutex
	existing [][]any
	appended [][]any
	appends  int
}

func (f *fakeSheets) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(gsheet.ValueRange{Values: f.existing})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
			assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
			var body gsheet.ValueRange
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.appends++
			f.appended = append(f.appended, body.Values...)
			f.existing = append(f.existing, body.Values...)
			_ = json.NewEncoder(w).Encode(gsheet.AppendValuesResponse{
				Updates: &gsheet.UpdateValuesResponse{UpdatedRows: int64(len(body.Values))},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestExporter(t *testing.T, f *fakeSheets) *Exporter {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	e, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"}, nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return e
}

func records() []core.ExpenseRecord {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []core.ExpenseRecord{
		{ID: "b", Description: "Rent", Amount: 1200, Category: core.Needs, Confidence: 0.9, Method: "rule", Timestamp: ts.Add(time.Hour)},
		{ID: "a", Description: "Coffee", Amount: 4.5, Category: core.Wants, Confidence: 0.8, Method: "rule", Timestamp: ts, Tags: []string{"cafe", "morning"}},
	}
}

func TestExportWritesHeaderOnEmptySheet(t *testing.T) {
	f := &fakeSheets{}
	e := newTestExporter(t, f)

	n, err := e.ExportRecords(context.Background(), records())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, f.appended, 3)
	assert.Equal(t, "ID", f.appended[0][0])
	assert.Equal(t, "a", f.appended[1][0], "oldest record first")
	assert.Equal(t, "cafe, morning", f.appended[1][9])
	assert.Equal(t, "2026-03-01T10:00:00Z", f.appended[2][1])
}

func TestExportSkipsHeaderWhenSheetHasRows(t *testing.T) {
	f := &fakeSheets{existing: [][]any{{"ID"}}}
	e := newTestExporter(t, f)

	n, err := e.ExportRecords(context.Background(), records())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "a", f.appended[0][0])
}

func TestExportNothing(t *testing.T) {
	f := &fakeSheets{}
	e := newTestExporter(t, f)

	n, err := e.ExportRecords(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.appends)
}

func TestExportChunksLargeLogs(t *testing.T) {
	f := &fakeSheets{existing: [][]any{{"ID"}}}
	e := newTestExporter(t, f)

	recs := make([]core.ExpenseRecord, appendChunk+1)
	for i := range recs {
		recs[i] = records()[0]
	}
	n, err := e.ExportRecords(context.Background(), recs)

	require.NoError(t, err)
	assert.Equal(t, appendChunk+1, n)
	assert.Equal(t, 2, f.appends)
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.ErrorContains(t, err, "spreadsheet ID")

	_, err = New(context.Background(), Config{SpreadsheetID: "x"}, nil)
	assert.ErrorContains(t, err, "credentials")

	_, err = New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: t.TempDir() + "/missing.json"}, nil)
	assert.ErrorContains(t, err, "read service account file")
}
