package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"budgetwise/internal/analytics"
	"budgetwise/internal/config"
	"budgetwise/internal/core"
	"budgetwise/internal/mockapi"
)

type harness struct {
	t   *testing.T
	cfg *config.Config
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := httptest.NewServer(mockapi.New(mockapi.Config{
		JWTSecret:  "test-secret",
		BcryptCost: bcrypt.MinCost,
	}).Handler())
	t.Cleanup(srv.Close)

	return &harness{
		t: t,
		cfg: &config.Config{
			APIBaseURL:         srv.URL,
			APITimeout:         5 * time.Second,
			APIRateLimit:       100,
			StoreBackend:       "sqlite",
			SQLiteDBPath:       filepath.Join(t.TempDir(), "bw.db"),
			AnalyticsCacheSize: 8,
			AnalyticsCacheTTL:  time.Minute,
			LogLevel:           "error",
		},
		now: time.Now(),
	}
}

// run executes one command against a fresh App, as separate CLI
// invocations would.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	err := Run(context.Background(), Options{
		Stdin:      strings.NewReader(stdin),
		Stdout:     &out,
		Stderr:     &errOut,
		LoadConfig: func() (*config.Config, error) { return h.cfg, nil },
		Now:        func() time.Time { return h.now },
	}, args)
	return out.String(), err
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.run(stdin, args...)
	require.NoError(h.t, err, "budgetwise %s", strings.Join(args, " "))
	return out
}

func TestSignupLoginAndExpenses(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("hunter2hunter2\nhunter2hunter2\n",
		"signup", "--name", "Ada", "--email", "ada@example.com", "--agree-to-terms")
	assert.Contains(t, out, "Account created for Ada")

	assert.Contains(t, h.mustRun("", "whoami"), "Not signed in", "signup does not sign in")

	out = h.mustRun("hunter2hunter2\n", "login", "--email", "ada@example.com")
	assert.Contains(t, out, "Signed in as Ada <ada@example.com>")

	out = h.mustRun("", "whoami")
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "currency: USD")

	out = h.mustRun("", "expense", "add", "Morning coffee", "4,50", "--tag", "cafe")
	assert.Contains(t, out, "Wants")

	csvPath := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("description,amount\nRent,1200\nInvalid line\nETF savings,300\n"), 0o600))
	assert.Contains(t, h.mustRun("", "expense", "import", csvPath), "Imported 2 expenses")

	out = h.mustRun("", "expense", "list")
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "1200.00")
	assert.Contains(t, out, "4.50")

	out = h.mustRun("", "analytics", "--range", "7d", "--json")
	var snap core.AnalyticsSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, 3, snap.TransactionCount)
	assert.InDelta(t, 1504.5, snap.TotalAmount, 1e-9)
	assert.Len(t, snap.DailyTrend, analytics.DailyBuckets)
	assert.InDelta(t, 1200, snap.CategoryBreakdown[core.Needs], 1e-9)
	assert.InDelta(t, 300, snap.CategoryBreakdown[core.Savings], 1e-9)

	out = h.mustRun("", "analytics", "--category", "needs")
	assert.Contains(t, out, "1200.00 over 1 expenses")

	assert.Contains(t, h.mustRun("", "logout"), "Signed out")
	assert.Contains(t, h.mustRun("", "whoami"), "Not signed in")
	assert.Contains(t, h.mustRun("", "expense", "list"), "Rent", "logout keeps the expense log")
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("wrong-password\n", "login", "--email", "nobody@example.com")

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "auth error", "only the server message is shown")
	assert.Contains(t, h.mustRun("", "whoami"), "Not signed in")
}

func TestProfileUpdates(t *testing.T) {
	h := newHarness(t)
	h.mustRun("", "signup", "--name", "Bo", "--email", "bo@example.com", "--password", "longenough1", "--agree-to-terms")
	h.mustRun("", "login", "--email", "bo@example.com", "--password", "longenough1")

	assert.Contains(t, h.mustRun("", "profile", "set-preferences", "--currency", "eur", "--weekly-reports"), "Preferences updated")
	h.mustRun("", "profile", "set-personal", "--country", "Italy")

	out := h.mustRun("", "profile", "show")
	assert.Contains(t, out, "currency: EUR")
	assert.Contains(t, out, "country:  Italy")
}

func TestProfileRequiresSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "profile", "show")
	assert.Error(t, err)
}

func TestImportRejectsEmptyBatchBeforeNetwork(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("not json", "expense", "import", "--format", "json", "-")
	assert.Error(t, err)

	_, err = h.run("only garbage\n", "expense", "import", "-")
	assert.ErrorContains(t, err, "no valid expenses")
}

func TestExportWithoutSheetsConfigured(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "export")
	assert.ErrorIs(t, err, ErrExportDisabled)
}

func TestAddRejectsBadAmount(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "expense", "add", "Coffee", "0")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestBatchFormat(t *testing.T) {
	f, err := batchFormat("", "data.JSON")
	require.NoError(t, err)
	assert.Equal(t, "json", string(f))

	f, err = batchFormat("", "-")
	require.NoError(t, err)
	assert.Equal(t, "csv", string(f))

	_, err = batchFormat("xml", "x")
	assert.Error(t, err)
}
