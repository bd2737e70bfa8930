package expenses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetwise/internal/api"
	"budgetwise/internal/core"
	"budgetwise/internal/mockapi"
	"budgetwise/internal/store"
)

func mockClient(t *testing.T) *api.Client {
	t.Helper()
	srv := httptest.NewServer(mockapi.New(mockapi.Config{JWTSecret: "s"}).Handler())
	t.Cleanup(srv.Close)
	return api.New(api.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func stubClient(t *testing.T, h http.HandlerFunc) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return api.New(api.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

type countingClassifier struct {
	Classifier
	calls atomic.Int32
}

func (c *countingClassifier) Categorize(ctx context.Context, req api.CategorizeRequest) (*api.CategorizeResponse, error) {
	c.calls.Add(1)
	return c.Classifier.Categorize(ctx, req)
}

func (c *countingClassifier) BatchCategorize(ctx context.Context, items []api.CategorizeRequest) (*api.BatchResponse, error) {
	c.calls.Add(1)
	return c.Classifier.BatchCategorize(ctx, items)
}

type recordingPublisher struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (p *recordingPublisher) PublishExpenseCategorized(_ context.Context, r core.ExpenseRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, r.ID)
	if p.fail {
		return errors.New("broker down")
	}
	return nil
}

func storedRecords(t *testing.T, st store.Store) []core.ExpenseRecord {
	t.Helper()
	raw, ok, err := st.Get(context.Background(), store.KeyExpenses)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	var out []core.ExpenseRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestCategorizeAndAppend(t *testing.T) {
	st := store.NewMemory()
	pub := &recordingPublisher{}
	svc := NewService(mockClient(t), st, Options{Publisher: pub})

	first, err := svc.CategorizeAndAppend(context.Background(), Input{
		Description: "Monthly rent", Amount: 1200, Merchant: "Landlord", Tags: []string{"home", " home", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, core.Needs, first.Category)
	assert.Equal(t, "Landlord", first.Merchant)
	assert.Equal(t, []string{"home"}, first.Tags)
	assert.False(t, first.Timestamp.IsZero())
	assert.Greater(t, first.ProcessingTimeMs, 0.0)
	assert.NoError(t, first.Validate())

	second, err := svc.CategorizeAndAppend(context.Background(), Input{Description: "Coffee", Amount: 3.2})
	require.NoError(t, err)

	recs := svc.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, second.ID, recs[0].ID, "newest first")
	assert.Equal(t, first.ID, recs[1].ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, recs, storedRecords(t, st))
	assert.Equal(t, []string{first.ID, second.ID}, pub.ids)
}

func TestCategorizeValidationSkipsNetwork(t *testing.T) {
	cc := &countingClassifier{Classifier: mockClient(t)}
	svc := NewService(cc, store.NewMemory(), Options{})

	for _, in := range []Input{{Description: " ", Amount: 3}, {Description: "x", Amount: 0}, {Description: "x", Amount: -1}} {
		_, err := svc.CategorizeAndAppend(context.Background(), in)
		assert.ErrorIs(t, err, api.ErrValidation)
	}
	assert.Zero(t, cc.calls.Load())
}

func TestCategorizeFailureLeavesLogUnchanged(t *testing.T) {
	st := store.NewMemory()
	client := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "data": {"category": "Fun", "confidence": 0.9}}`))
	})
	svc := NewService(client, st, Options{})

	_, err := svc.CategorizeAndAppend(context.Background(), Input{Description: "x", Amount: 1})
	assert.ErrorIs(t, err, api.ErrMalformedResponse)
	assert.Empty(t, svc.Records())
	assert.Empty(t, storedRecords(t, st))
}

func TestPublishFailureDoesNotFailAppend(t *testing.T) {
	svc := NewService(mockClient(t), store.NewMemory(), Options{Publisher: &recordingPublisher{fail: true}})
	_, err := svc.CategorizeAndAppend(context.Background(), Input{Description: "Coffee", Amount: 3})
	require.NoError(t, err)
	assert.Len(t, svc.Records(), 1)
}

func TestBatchCSVScenario(t *testing.T) {
	var got api.BatchRequest
	client := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.BatchResponse{
			Success: true,
			Data: &api.BatchData{
				Results: []api.BatchItem{
					{Description: "Coffee", Amount: 4.5, Category: core.Wants, Confidence: 0.9, Method: "rule"},
					{Description: "Rent", Amount: 1200, Category: core.Needs, Confidence: 0.95, Method: "rule"},
				},
				ProcessedCount: 2,
			},
		})
	})
	fixed := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	svc := NewService(client, store.NewMemory(), Options{Now: func() time.Time { return fixed }})

	recs, err := svc.BatchCategorizeAndAppend(context.Background(), "Coffee,4.5\nInvalid line\nRent,1200", FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, []api.CategorizeRequest{
		{Description: "Coffee", Amount: 4.5},
		{Description: "Rent", Amount: 1200},
	}, got.Expenses)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.Timestamp.Equal(fixed))
	}
	assert.Equal(t, core.Wants, recs[0].Category)
	assert.Len(t, svc.Records(), 2)
}

func TestBatchAgainstMockBackend(t *testing.T) {
	svc := NewService(mockClient(t), store.NewMemory(), Options{})
	_, err := svc.CategorizeAndAppend(context.Background(), Input{Description: "Old", Amount: 1})
	require.NoError(t, err)

	recs, err := svc.BatchCategorizeAndAppend(context.Background(),
		`[{"description":"Groceries","amount":80},{"description":"Netflix","amount":"12.99"}]`, FormatJSON)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	all := svc.Records()
	require.Len(t, all, 3)
	assert.Equal(t, "Groceries", all[0].Description)
	assert.Equal(t, "Netflix", all[1].Description)
	assert.Equal(t, "Old", all[2].Description)
}

func TestBatchValidationSkipsNetwork(t *testing.T) {
	cc := &countingClassifier{Classifier: mockClient(t)}
	svc := NewService(cc, store.NewMemory(), Options{})

	for _, tc := range []struct {
		raw    string
		format Format
	}{
		{"Invalid line\n,3\nX,-1", FormatCSV},
		{"", FormatCSV},
		{"[not json", FormatJSON},
		{"[]", FormatJSON},
	} {
		_, err := svc.BatchCategorizeAndAppend(context.Background(), tc.raw, tc.format)
		assert.ErrorIs(t, err, api.ErrValidation, tc.raw)
	}
	assert.Zero(t, cc.calls.Load())
}

func TestBatchMalformedResponseAppendsNothing(t *testing.T) {
	responses := map[string]string{
		"count mismatch": `{"success":true,"data":{"results":[{"description":"a","amount":1,"category":"Needs","confidence":0.9}],"processed_count":1}}`,
		"bad category":   `{"success":true,"data":{"results":[{"category":"Needs","confidence":0.9},{"category":"Other","confidence":0.9}],"processed_count":2}}`,
		"bad confidence": `{"success":true,"data":{"results":[{"category":"Needs","confidence":0.9},{"category":"Wants","confidence":7}],"processed_count":2}}`,
		"not json":       `<html>`,
	}
	for name, body := range responses {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemory()
			client := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			svc := NewService(client, st, Options{})

			_, err := svc.BatchCategorizeAndAppend(context.Background(), "a,1\nb,2", FormatCSV)
			assert.ErrorIs(t, err, api.ErrMalformedResponse)
			assert.Empty(t, svc.Records())
			assert.Empty(t, storedRecords(t, st))
		})
	}
}

func TestSingleServiceConcurrentAppends(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(mockClient(t), st, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CategorizeAndAppend(context.Background(), Input{Description: "Coffee", Amount: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, svc.Records(), 25)
	assert.Len(t, storedRecords(t, st), 25)
}

func TestLoadClearAndVersion(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(mockClient(t), st, Options{})
	assert.Equal(t, "0", svc.Version())

	rec, err := svc.CategorizeAndAppend(context.Background(), Input{Description: "Coffee", Amount: 2})
	require.NoError(t, err)
	assert.Equal(t, "1:"+rec.ID, svc.Version())

	other := NewService(nil, st, Options{})
	recs, err := other.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	require.NoError(t, svc.Clear(context.Background()))
	assert.Empty(t, svc.Records())
	assert.Equal(t, "0", svc.Version())
	assert.Empty(t, storedRecords(t, st))
}

func TestLoadCorruptLog(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Set(context.Background(), store.KeyExpenses, "{oops"))
	_, err := NewService(nil, st, Options{}).Load(context.Background())
	assert.Error(t, err)
}

type sliceExporter struct{ got []core.ExpenseRecord }

func (e *sliceExporter) ExportRecords(_ context.Context, r []core.ExpenseRecord) (int, error) {
	e.got = r
	return len(r), nil
}

func TestExport(t *testing.T) {
	svc := NewService(mockClient(t), store.NewMemory(), Options{})
	_, err := svc.CategorizeAndAppend(context.Background(), Input{Description: "Coffee", Amount: 2})
	require.NoError(t, err)

	exp := &sliceExporter{}
	n, err := svc.Export(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, exp.got, 1)
}
