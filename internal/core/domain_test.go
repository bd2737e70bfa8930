package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	for _, in := range []string{"Needs", "needs", " WANTS ", "savings"} {
		if _, err := ParseCategory(in); err != nil {
			t.Fatalf("%q expected ok, got %v", in, err)
		}
	}
	if _, err := ParseCategory("Luxury"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestExpenseRecordValidate(t *testing.T) {
	good := ExpenseRecord{
		ID:          "x",
		Description: "Coffee",
		Amount:      4.5,
		Category:    Wants,
		Confidence:  0.9,
		Method:      "rule",
		Timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []func(r *ExpenseRecord){
		func(r *ExpenseRecord) { r.Description = " " },
		func(r *ExpenseRecord) { r.Amount = 0 },
		func(r *ExpenseRecord) { r.Category = "Other" },
		func(r *ExpenseRecord) { r.Confidence = 1.01 },
		func(r *ExpenseRecord) { r.Confidence = -0.1 },
		func(r *ExpenseRecord) { r.Timestamp = time.Time{} },
	}
	for i, mutate := range bads {
		r := good
		mutate(&r)
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := Session{IsAuthenticated: true, AccessToken: "a", User: &User{ID: "1", Name: "A"}, Profile: &UserProfile{}}
	c := s.Clone()
	c.User.Name = "B"
	c.Profile.Preferences.Currency = "EUR"
	if s.User.Name != "A" || s.Profile.Preferences.Currency != "" {
		t.Fatalf("clone shares pointers with original")
	}
}
