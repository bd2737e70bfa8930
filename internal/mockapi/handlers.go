package mockapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"budgetwise/internal/api"
	"budgetwise/internal/core"
	applog "budgetwise/internal/log"
)

const minPasswordLen = 8

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	switch {
	case strings.TrimSpace(req.Name) == "":
		writeDetail(w, http.StatusUnprocessableEntity, "Name is required")
		return
	case !strings.Contains(req.Email, "@"):
		writeDetail(w, http.StatusUnprocessableEntity, "A valid email is required")
		return
	case len(req.Password) < minPasswordLen:
		writeDetail(w, http.StatusUnprocessableEntity, "Password must be at least 8 characters")
		return
	case req.Password != req.ConfirmPassword:
		writeDetail(w, http.StatusUnprocessableEntity, "Passwords do not match")
		return
	case !req.AgreeToTerms:
		writeDetail(w, http.StatusUnprocessableEntity, "You must agree to the terms")
		return
	}

	user, err := s.accounts.create(req)
	if errors.Is(err, errEmailTaken) {
		writeDetail(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Signup failed",
			applog.NewFields().WithOperation(applog.OpSignup).WithError(err).ToSlice()...)
		writeDetail(w, http.StatusInternalServerError, "Could not create account")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req api.SigninRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.accounts.authenticate(req.Email, req.Password)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	refreshTTL := s.refreshTTL
	if !req.RememberMe {
		refreshTTL = min(refreshTTL, 24*time.Hour)
	}
	s.writeTokens(w, r, user, refreshTTL)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.signer.verify(req.RefreshToken, tokenTypeRefresh)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err := s.accounts.consumeRefresh(c.ID, c.Subject); err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	user, err := s.accounts.user(c.Subject)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	s.writeTokens(w, r, user, s.refreshTTL)
}

func (s *Server) writeTokens(w http.ResponseWriter, r *http.Request, user core.User, refreshTTL time.Duration) {
	access, _, err := s.signer.issue(user.ID, tokenTypeAccess, s.accessTTL)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Token issue failed", applog.NewFields().WithError(err).ToSlice()...)
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	refresh, jti, err := s.signer.issue(user.ID, tokenTypeRefresh, refreshTTL)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Token issue failed", applog.NewFields().WithError(err).ToSlice()...)
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	s.accounts.rememberRefresh(jti, user.ID)

	writeJSON(w, http.StatusOK, api.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
		User:         &user,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.user(userID(r))
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "User no longer exists")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.accounts.profile(userID(r))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdatePersonal(w http.ResponseWriter, r *http.Request) {
	var req api.PersonalUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := s.accounts.updatePersonal(userID(r), req)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": profile})
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req api.PreferencesUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := s.accounts.updatePreferences(userID(r), req)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": profile})
}

func validExpense(req api.CategorizeRequest) bool {
	return strings.TrimSpace(req.Description) != "" && req.Amount > 0
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req api.CategorizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validExpense(req) {
		writeDetail(w, http.StatusUnprocessableEntity, "Description is required and amount must be positive")
		return
	}

	c := classify(req.Description, req.Amount)
	writeJSON(w, http.StatusOK, api.CategorizeResponse{
		Success: true,
		Data: &api.Categorization{
			Description: req.Description,
			Category:    c.Category,
			Confidence:  c.Confidence,
			Method:      c.Method,
			Amount:      req.Amount,
			Timestamp:   s.now().UTC(),
		},
		ProcessingTimeMs: elapsedMs(start),
	})
}

func (s *Server) handleBatchCategorize(w http.ResponseWriter, r *http.Request) {
	var req api.BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Expenses) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "No expenses provided")
		return
	}

	results := make([]api.BatchItem, 0, len(req.Expenses))
	summary := api.BatchSummary{CategoryCounts: make(map[string]int)}
	for i, e := range req.Expenses {
		if !validExpense(e) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"detail": []map[string]any{{"msg": "invalid expense", "loc": []any{"expenses", i}}},
			})
			return
		}
		start := time.Now()
		c := classify(e.Description, e.Amount)
		results = append(results, api.BatchItem{
			Description:      e.Description,
			Amount:           e.Amount,
			Category:         c.Category,
			Confidence:       c.Confidence,
			Method:           c.Method,
			ProcessingTimeMs: elapsedMs(start),
		})
		summary.TotalAmount += e.Amount
		summary.CategoryCounts[string(c.Category)]++
	}

	writeJSON(w, http.StatusOK, api.BatchResponse{
		Success: true,
		Data: &api.BatchData{
			Results:        results,
			ProcessedCount: len(results),
			Summary:        summary,
		},
	})
}

// elapsedMs never reports zero so callers can tell "measured" from "absent".
func elapsedMs(start time.Time) float64 {
	ms := float64(time.Since(start).Microseconds()) / 1000
	if ms <= 0 {
		ms = 0.001
	}
	return ms
}
