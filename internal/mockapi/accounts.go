package mockapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"budgetwise/internal/api"
	"budgetwise/internal/core"
)

var (
	errEmailTaken         = errors.New("an account with this email already exists")
	errInvalidCredentials = errors.New("invalid email or password")
	errUnknownUser        = errors.New("user not found")
	errRefreshReused      = errors.New("refresh token already used")
)

type account struct {
	user         core.User
	passwordHash []byte
	profile      core.UserProfile
}

// accounts is the in-memory user database. Refresh tokens are single use:
// each refresh consumes its jti.
type accounts struct {
	mu          sync.Mutex
	byID        map[string]*account
	byEmail     map[string]string
	liveRefresh map[string]string // jti -> user ID
	bcryptCost  int
	dummyHash   []byte
	now         func() time.Time
}

func newAccounts(cost int, now func() time.Time) *accounts {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-password"), cost)
	return &accounts{
		dummyHash:   dummy,
		byID:        make(map[string]*account),
		byEmail:     make(map[string]string),
		liveRefresh: make(map[string]string),
		bcryptCost:  cost,
		now:         now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *accounts) create(req api.SignupRequest) (core.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if err != nil {
		return core.User{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	email := normalizeEmail(req.Email)
	if _, exists := a.byEmail[email]; exists {
		return core.User{}, errEmailTaken
	}

	now := a.now().UTC()
	acc := &account{
		user: core.User{
			ID:        uuid.NewString(),
			Name:      strings.TrimSpace(req.Name),
			Email:     email,
			Role:      "user",
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
		profile: core.UserProfile{
			Profile: core.PersonalInfo{
				Phone:       req.Phone,
				Country:     req.Country,
				DateOfBirth: req.DateOfBirth,
			},
			Preferences: core.Preferences{
				Currency:           "USD",
				Language:           "en",
				EmailNotifications: true,
				BudgetAlerts:       true,
			},
			FinancialProfile: core.FinancialProfile{
				IncomeRange:      req.IncomeRange,
				FinancialGoal:    req.FinancialGoal,
				EmploymentStatus: req.EmploymentStatus,
				RiskTolerance:    req.RiskTolerance,
			},
		},
	}
	acc.refreshStats()
	a.byID[acc.user.ID] = acc
	a.byEmail[email] = acc.user.ID
	return acc.user, nil
}

// authenticate checks the password and counts the login.
func (a *accounts) authenticate(email, password string) (core.User, error) {
	a.mu.Lock()
	id, ok := a.byEmail[normalizeEmail(email)]
	var acc *account
	if ok {
		acc = a.byID[id]
	}
	a.mu.Unlock()

	if acc == nil {
		// Same cost as a real comparison so unknown emails are not cheaper.
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		return core.User{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return core.User{}, errInvalidCredentials
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	acc.profile.Stats.LoginCount++
	return acc.user, nil
}

func (a *accounts) user(id string) (core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[id]
	if !ok {
		return core.User{}, errUnknownUser
	}
	return acc.user, nil
}

func (a *accounts) profile(id string) (core.UserProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[id]
	if !ok {
		return core.UserProfile{}, errUnknownUser
	}
	return acc.profile, nil
}

func (a *accounts) updatePersonal(id string, req api.PersonalUpdate) (core.UserProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[id]
	if !ok {
		return core.UserProfile{}, errUnknownUser
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		acc.user.Name = strings.TrimSpace(*req.Name)
	}
	p := &acc.profile.Profile
	assign(&p.Phone, req.Phone)
	assign(&p.Bio, req.Bio)
	assign(&p.Country, req.Country)
	assign(&p.DateOfBirth, req.DateOfBirth)
	acc.user.UpdatedAt = a.now().UTC()
	acc.refreshStats()
	return acc.profile, nil
}

func (a *accounts) updatePreferences(id string, req api.PreferencesUpdate) (core.UserProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[id]
	if !ok {
		return core.UserProfile{}, errUnknownUser
	}
	p := &acc.profile.Preferences
	assign(&p.Currency, req.Currency)
	assign(&p.Language, req.Language)
	assign(&p.EmailNotifications, req.EmailNotifications)
	assign(&p.BudgetAlerts, req.BudgetAlerts)
	assign(&p.WeeklyReports, req.WeeklyReports)
	assign(&p.Newsletter, req.Newsletter)
	acc.user.UpdatedAt = a.now().UTC()
	acc.refreshStats()
	return acc.profile, nil
}

func (a *accounts) rememberRefresh(jti, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.liveRefresh[jti] = userID
}

// consumeRefresh accepts each refresh jti exactly once.
func (a *accounts) consumeRefresh(jti, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	owner, ok := a.liveRefresh[jti]
	if !ok || owner != userID {
		return errRefreshReused
	}
	delete(a.liveRefresh, jti)
	return nil
}

// refreshStats recomputes completion and score from the filled fields.
func (acc *account) refreshStats() {
	fields := []string{
		acc.user.Name, acc.profile.Profile.Phone, acc.profile.Profile.Bio,
		acc.profile.Profile.Country, acc.profile.Profile.DateOfBirth,
		acc.profile.FinancialProfile.IncomeRange, acc.profile.FinancialProfile.FinancialGoal,
		acc.profile.FinancialProfile.EmploymentStatus, acc.profile.FinancialProfile.RiskTolerance,
	}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	completion := float64(filled) / float64(len(fields)) * 100
	acc.profile.Stats.ProfileCompletion = float64(int(completion*10+0.5)) / 10
	acc.profile.Stats.FinancialScore = 300 + float64(int(completion*5.5))
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
