package api

import (
	"strings"
	"time"

	"budgetwise/internal/core"
)

type (
	SignupRequest struct {
		Name             string `json:"name"`
		Email            string `json:"email"`
		Password         string `json:"password"`
		ConfirmPassword  string `json:"confirm_password"`
		Phone            string `json:"phone,omitempty"`
		Country          string `json:"country,omitempty"`
		DateOfBirth      string `json:"date_of_birth,omitempty"`
		IncomeRange      string `json:"income_range,omitempty"`
		FinancialGoal    string `json:"financial_goal,omitempty"`
		EmploymentStatus string `json:"employment_status,omitempty"`
		RiskTolerance    string `json:"risk_tolerance,omitempty"`
		AgreeToTerms     bool   `json:"agree_to_terms"`
	}

	SigninRequest struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}

	// TokenResponse is returned by both signin and refresh.
	TokenResponse struct {
		AccessToken  string     `json:"access_token"`
		RefreshToken string     `json:"refresh_token"`
		TokenType    string     `json:"token_type"`
		ExpiresIn    int        `json:"expires_in"`
		User         *core.User `json:"user"`
	}

	// PersonalUpdate fields left nil are not sent.
	PersonalUpdate struct {
		Name        *string `json:"name,omitempty"`
		Phone       *string `json:"phone,omitempty"`
		Bio         *string `json:"bio,omitempty"`
		Country     *string `json:"country,omitempty"`
		DateOfBirth *string `json:"date_of_birth,omitempty"`
	}

	PreferencesUpdate struct {
		Currency           *string `json:"currency,omitempty"`
		Language           *string `json:"language,omitempty"`
		EmailNotifications *bool   `json:"email_notifications,omitempty"`
		BudgetAlerts       *bool   `json:"budget_alerts,omitempty"`
		WeeklyReports      *bool   `json:"weekly_reports,omitempty"`
		Newsletter         *bool   `json:"newsletter,omitempty"`
	}

	profileEnvelope struct {
		Data *core.UserProfile `json:"data"`
	}

	CategorizeRequest struct {
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
	}

	Categorization struct {
		Description string        `json:"description"`
		Category    core.Category `json:"category"`
		Confidence  float64       `json:"confidence"`
		Method      string        `json:"method"`
		Amount      float64       `json:"amount"`
		Timestamp   time.Time     `json:"timestamp"`
	}

	CategorizeResponse struct {
		Success          bool            `json:"success"`
		Message          string          `json:"message,omitempty"`
		Data             *Categorization `json:"data"`
		ProcessingTimeMs float64         `json:"processing_time_ms"`
	}

	BatchRequest struct {
		Expenses []CategorizeRequest `json:"expenses"`
	}

	BatchItem struct {
		Description      string        `json:"description"`
		Amount           float64       `json:"amount"`
		Category         core.Category `json:"category"`
		Confidence       float64       `json:"confidence"`
		Method           string        `json:"method"`
		ProcessingTimeMs float64       `json:"processing_time_ms,omitempty"`
	}

	BatchSummary struct {
		TotalAmount    float64        `json:"total_amount"`
		CategoryCounts map[string]int `json:"category_counts,omitempty"`
	}

	BatchData struct {
		Results        []BatchItem  `json:"results"`
		ProcessedCount int          `json:"processed_count"`
		Summary        BatchSummary `json:"summary"`
	}

	BatchResponse struct {
		Success bool       `json:"success"`
		Message string     `json:"message,omitempty"`
		Data    *BatchData `json:"data"`
	}
)

// Validate checks the token payload carries an access token. Refresh
// responses may omit the user; signin responses may not.
func (r *TokenResponse) Validate(requireUser bool) error {
	if strings.TrimSpace(r.AccessToken) == "" {
		return decodeError("token response missing access_token")
	}
	if requireUser && (r.User == nil || r.User.ID == "") {
		return decodeError("token response missing user")
	}
	return nil
}

func (c *Categorization) validate() error {
	if !c.Category.Valid() {
		return decodeError("unknown category %q", c.Category)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return decodeError("confidence %v out of range", c.Confidence)
	}
	return nil
}

// Validate rejects responses a record cannot be built from.
func (r *CategorizeResponse) Validate() error {
	if !r.Success {
		msg := r.Message
		if msg == "" {
			msg = "categorization failed"
		}
		return &Error{Kind: KindServer, Message: msg}
	}
	if r.Data == nil {
		return decodeError("categorize response missing data")
	}
	return r.Data.validate()
}

// Validate checks every result and that one result came back per request.
func (r *BatchResponse) Validate(requested int) error {
	if !r.Success {
		msg := r.Message
		if msg == "" {
			msg = "batch categorization failed"
		}
		return &Error{Kind: KindServer, Message: msg}
	}
	if r.Data == nil {
		return decodeError("batch response missing data")
	}
	if len(r.Data.Results) != requested {
		return decodeError("batch returned %d results for %d expenses", len(r.Data.Results), requested)
	}
	for i, item := range r.Data.Results {
		if !item.Category.Valid() {
			return decodeError("result %d: unknown category %q", i, item.Category)
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			return decodeError("result %d: confidence %v out of range", i, item.Confidence)
		}
	}
	return nil
}
