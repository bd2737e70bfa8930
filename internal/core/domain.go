package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Needs   Category = "Needs"
	Wants   Category = "Wants"
	Savings Category = "Savings"
)

type (
	// Category is the budget bucket assigned by the remote classifier.
	Category string

	User struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		Email      string    `json:"email"`
		Role       string    `json:"role"`
		IsVerified bool      `json:"is_verified"`
		CreatedAt  time.Time `json:"created_at"`
		UpdatedAt  time.Time `json:"updated_at"`
	}

	PersonalInfo struct {
		Avatar      string `json:"avatar,omitempty"`
		Phone       string `json:"phone,omitempty"`
		Bio         string `json:"bio,omitempty"`
		DateOfBirth string `json:"date_of_birth,omitempty"`
		Country     string `json:"country,omitempty"`
	}

	Preferences struct {
		Currency           string `json:"currency,omitempty"`
		Language           string `json:"language,omitempty"`
		EmailNotifications bool   `json:"email_notifications"`
		BudgetAlerts       bool   `json:"budget_alerts"`
		WeeklyReports      bool   `json:"weekly_reports"`
		Newsletter         bool   `json:"newsletter"`
	}

	FinancialProfile struct {
		IncomeRange      string `json:"income_range,omitempty"`
		FinancialGoal    string `json:"financial_goal,omitempty"`
		EmploymentStatus string `json:"employment_status,omitempty"`
		RiskTolerance    string `json:"risk_tolerance,omitempty"`
	}

	ProfileStats struct {
		ProfileCompletion float64 `json:"profile_completion"`
		FinancialScore    float64 `json:"financial_score"`
		LoginCount        int     `json:"login_count"`
	}

	UserProfile struct {
		Profile          PersonalInfo     `json:"profile"`
		Preferences      Preferences      `json:"preferences"`
		FinancialProfile FinancialProfile `json:"financial_profile"`
		Stats            ProfileStats     `json:"stats"`
	}

	// Session is the in-memory view of who is signed in.
	Session struct {
		IsAuthenticated bool
		AccessToken     string
		RefreshToken    string
		User            *User
		Profile         *UserProfile
	}

	// ExpenseRecord is one categorized spending entry. Records are never
	// mutated after creation.
	ExpenseRecord struct {
		ID               string    `json:"id"`
		Description      string    `json:"description"`
		Amount           float64   `json:"amount"`
		Category         Category  `json:"category"`
		Confidence       float64   `json:"confidence"`
		Method           string    `json:"method"`
		Timestamp        time.Time `json:"timestamp"`
		ProcessingTimeMs float64   `json:"processing_time_ms"`
		Merchant         string    `json:"merchant,omitempty"`
		Notes            string    `json:"notes,omitempty"`
		Tags             []string  `json:"tags,omitempty"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidConfidence = errors.New("confidence out of range")
	ErrMissingTimestamp  = errors.New("missing timestamp")
)

// Categories returns the three budget buckets in display order.
func Categories() []Category {
	return []Category{Needs, Wants, Savings}
}

func (c Category) Valid() bool {
	switch c {
	case Needs, Wants, Savings:
		return true
	default:
		return false
	}
}

// ParseCategory matches case-insensitively against the known buckets.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Anonymous returns the empty session.
func Anonymous() Session {
	return Session{}
}

// Clone returns a deep copy so callers cannot reach into manager state.
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// Validate checks the invariants every stored record must hold.
func (r ExpenseRecord) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return ErrEmptyDescription
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return ErrInvalidConfidence
	}
	if r.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}
