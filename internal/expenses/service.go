// Package expenses keeps the categorized expense log: it sends new expenses
// to the remote classifier, turns the answers into records and persists the
// log newest-first.
package expenses

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetwise/internal/api"
	"budgetwise/internal/core"
	applog "budgetwise/internal/log"
	"budgetwise/internal/store"
)

// Classifier is the part of the API client that categorizes expenses.
type Classifier interface {
	Categorize(ctx context.Context, req api.CategorizeRequest) (*api.CategorizeResponse, error)
	BatchCategorize(ctx context.Context, items []api.CategorizeRequest) (*api.BatchResponse, error)
}

// EventPublisher announces newly categorized records.
type EventPublisher interface {
	PublishExpenseCategorized(ctx context.Context, r core.ExpenseRecord) error
}

// Exporter copies records to an external destination and reports how many
// it wrote.
type Exporter interface {
	ExportRecords(ctx context.Context, records []core.ExpenseRecord) (int, error)
}

// Input is what a user enters for a single expense.
type Input struct {
	Description string
	Amount      float64
	Merchant    string
	Notes       string
	Tags        []string
}

type Options struct {
	// Publisher is optional.
	Publisher EventPublisher
	Logger    *applog.Logger
	Now       func() time.Time
}

// Service owns the expense log. Appends are serialized so the
// read-modify-write of the stored log never loses a record.
type Service struct {
	classifier Classifier
	store      store.Store
	publisher  EventPublisher
	logger     *applog.Logger
	now        func() time.Time

	mu      sync.Mutex
	records []core.ExpenseRecord
}

func NewService(classifier Classifier, st store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		classifier: classifier,
		store:      st,
		publisher:  opts.Publisher,
		logger:     logger.WithComponent(applog.ComponentExpense),
		now:        now,
	}
}

// Load reads the persisted log and makes it the current one.
func (s *Service) Load(ctx context.Context) ([]core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.records = records
	return cloneRecords(records), nil
}

// Records returns the log as of the last Load or append, newest first.
func (s *Service) Records() []core.ExpenseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.records)
}

// Version identifies the current log contents. The log only grows at the
// front with unique IDs, so length plus newest ID is enough.
func (s *Service) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return "0"
	}
	return fmt.Sprintf("%d:%s", len(s.records), s.records[0].ID)
}

// Clear deletes the whole log.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, store.KeyExpenses); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	s.records = nil
	return nil
}

// CategorizeAndAppend classifies one expense and prepends the resulting
// record. On any failure the log is unchanged.
func (s *Service) CategorizeAndAppend(ctx context.Context, in Input) (core.ExpenseRecord, error) {
	fields := applog.NewFields().WithOperation(applog.OpCategorize)

	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return core.ExpenseRecord{}, api.ValidationError("description is required")
	}
	if !validAmount(in.Amount) {
		return core.ExpenseRecord{}, api.ValidationError("amount must be a positive number")
	}

	resp, err := s.classifier.Categorize(ctx, api.CategorizeRequest{Description: desc, Amount: in.Amount})
	if err != nil {
		s.logger.WarnContext(ctx, "Categorization failed", fields.WithError(err).ToSlice()...)
		return core.ExpenseRecord{}, err
	}

	ts := resp.Data.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	record := core.ExpenseRecord{
		ID:               newID(),
		Description:      desc,
		Amount:           in.Amount,
		Category:         resp.Data.Category,
		Confidence:       resp.Data.Confidence,
		Method:           resp.Data.Method,
		Timestamp:        ts,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		Merchant:         strings.TrimSpace(in.Merchant),
		Notes:            strings.TrimSpace(in.Notes),
		Tags:             cleanTags(in.Tags),
	}
	if err := record.Validate(); err != nil {
		return core.ExpenseRecord{}, &api.Error{Kind: api.KindDecode, Message: err.Error(), Err: err}
	}

	if err := s.prepend(ctx, []core.ExpenseRecord{record}); err != nil {
		return core.ExpenseRecord{}, err
	}

	s.logger.InfoContext(ctx, "Expense categorized",
		fields.WithExpense(record.ID, record.Description, record.Amount, string(record.Category), record.Confidence).ToSlice()...)
	s.publish(ctx, record)
	return record, nil
}

// BatchCategorizeAndAppend parses raw, classifies every row in one request
// and prepends all records or none. Input with no usable rows fails before
// any request is made. Every record gets the same timestamp, taken when the
// response arrives.
func (s *Service) BatchCategorizeAndAppend(ctx context.Context, raw string, format Format) ([]core.ExpenseRecord, error) {
	fields := applog.NewFields().WithOperation(applog.OpBatch)

	rows, err := ParseBatch(raw, format)
	if err != nil {
		return nil, api.ValidationError("%v", err)
	}
	if len(rows) == 0 {
		return nil, api.ValidationError("no valid expenses found in input")
	}

	reqs := make([]api.CategorizeRequest, len(rows))
	for i, r := range rows {
		reqs[i] = api.CategorizeRequest{Description: r.Description, Amount: r.Amount}
	}

	resp, err := s.classifier.BatchCategorize(ctx, reqs)
	if err != nil {
		s.logger.WarnContext(ctx, "Batch categorization failed", fields.WithError(err).ToSlice()...)
		return nil, err
	}

	ts := s.now()
	records := make([]core.ExpenseRecord, len(rows))
	for i, item := range resp.Data.Results {
		records[i] = core.ExpenseRecord{
			ID:               newID(),
			Description:      rows[i].Description,
			Amount:           rows[i].Amount,
			Category:         item.Category,
			Confidence:       item.Confidence,
			Method:           item.Method,
			Timestamp:        ts,
			ProcessingTimeMs: item.ProcessingTimeMs,
		}
		if err := records[i].Validate(); err != nil {
			return nil, &api.Error{Kind: api.KindDecode, Message: fmt.Sprintf("result %d: %v", i, err), Err: err}
		}
	}

	if err := s.prepend(ctx, records); err != nil {
		return nil, err
	}

	fields[applog.FieldCount] = len(records)
	s.logger.InfoContext(ctx, "Batch categorized", fields.ToSlice()...)
	for _, r := range records {
		s.publish(ctx, r)
	}
	return records, nil
}

// Export hands the current log to exp.
func (s *Service) Export(ctx context.Context, exp Exporter) (int, error) {
	records := s.Records()
	n, err := exp.ExportRecords(ctx, records)
	fields := applog.NewFields().WithOperation(applog.OpExport)
	fields[applog.FieldCount] = n
	if err != nil {
		s.logger.ErrorContext(ctx, "Export failed", fields.WithError(err).ToSlice()...)
		return n, fmt.Errorf("export expenses: %w", err)
	}
	s.logger.InfoContext(ctx, "Export completed", fields.ToSlice()...)
	return n, nil
}

// prepend re-reads the stored log under the lock so appends from other
// handles on the same store are not overwritten.
func (s *Service) prepend(ctx context.Context, fresh []core.ExpenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readLocked(ctx)
	if err != nil {
		return err
	}

	next := make([]core.ExpenseRecord, 0, len(fresh)+len(current))
	next = append(next, fresh...)
	next = append(next, current...)

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode expenses: %w", err)
	}
	if err := s.store.Set(ctx, store.KeyExpenses, string(raw)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist expenses",
			applog.NewFields().WithOperation(applog.OpPersist).WithError(err).ToSlice()...)
		return fmt.Errorf("persist expenses: %w", err)
	}
	s.records = next
	return nil
}

func (s *Service) readLocked(ctx context.Context) ([]core.ExpenseRecord, error) {
	raw, ok, err := s.store.Get(ctx, store.KeyExpenses)
	if err != nil {
		return nil, fmt.Errorf("read expenses: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var records []core.ExpenseRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode stored expenses: %w", err)
	}
	return records, nil
}

func (s *Service) publish(ctx context.Context, r core.ExpenseRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseCategorized(ctx, r); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense event",
			applog.NewFields().WithOperation(applog.OpPublish).WithError(err).
				WithExpense(r.ID, r.Description, r.Amount, string(r.Category), r.Confidence).ToSlice()...)
	}
}

// newID returns a time-ordered UUIDv7, falling back to v4.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func validAmount(a float64) bool {
	return a > 0 && !math.IsInf(a, 0) && !math.IsNaN(a)
}

func cleanTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func cloneRecords(in []core.ExpenseRecord) []core.ExpenseRecord {
	if in == nil {
		return nil
	}
	out := make([]core.ExpenseRecord, len(in))
	for i, r := range in {
		if r.Tags != nil {
			r.Tags = append([]string(nil), r.Tags...)
		}
		out[i] = r
	}
	return out
}
