package services

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"quota-platform/internal/db"
	"quota-platform/internal/events"
	"quota-platform/internal/models"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recordingEmitter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recordingEmitter) Names() []string {
	var names []string
	for _, e := range r.Events() {
		names = append(names, e.Name)
	}
	return names
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	pool     atomic.Int64
}

func (m *recordingMetrics) RecordOperation(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, op+":"+outcome)
}

func (m *recordingMetrics) RecordPoolLevel(available int64) { m.pool.Store(available) }

func (m *recordingMetrics) Outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}

type testEnv struct {
	sqlDB   *sql.DB
	store   *db.Store
	emitter *recordingEmitter
	metrics *recordingMetrics

	ledger       *LedgerService
	marketplace  *MarketplaceService
	requests     *RequestService
	transactions *TransactionService
	users        *UserService
	settings     *SettingsService

	seq atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqlDB, err := db.Open(db.SQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return newTestEnvOn(t, sqlDB, db.SQLite)
}

// newPostgresTestEnv runs against the postgres database in TEST_DB_URL and
// skips when it is unset or unreachable. Unlike sqlite it has a real
// connection pool, so concurrent units of work interleave under row locks.
func newPostgresTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}
	sqlDB, err := db.Open(db.Postgres, dsn)
	if err != nil {
		t.Skipf("Skipping test: failed to connect to PostgreSQL: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	return newTestEnvOn(t, sqlDB, db.Postgres)
}

func newTestEnvOn(t *testing.T, sqlDB *sql.DB, dialect db.Dialect) *testEnv {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, db.RunMigrations(ctx, sqlDB, dialect))
	for _, table := range []string{
		"quota_transactions", "quota_purchases", "quota_listings",
		"credit_requests", "quota_requests", "users", "pool", "system_settings",
	} {
		_, err := sqlDB.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}

	store := db.NewStore(sqlDB, dialect)
	require.NoError(t, store.Seed(ctx, 10000, models.SystemSettings{
		CreditPrice:        decimal.NewFromInt(1),
		QuotaPrice:         decimal.NewFromInt(20),
		DailyPurchaseLimit: 100,
	}))

	logger := zerolog.Nop()
	emitter := &recordingEmitter{}
	m := &recordingMetrics{}

	return &testEnv{
		sqlDB:        sqlDB,
		store:        store,
		emitter:      emitter,
		metrics:      m,
		ledger:       NewLedgerService(store, emitter, m, logger),
		marketplace:  NewMarketplaceService(store, emitter, m, logger),
		requests:     NewRequestService(store, emitter, m, logger),
		transactions: NewTransactionService(store, logger),
		users:        NewUserService(store, logger),
		settings:     NewSettingsService(store, logger),
	}
}

// exec runs raw SQL written with ? placeholders on the test database.
func (e *testEnv) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := e.sqlDB.Exec(e.store.Dialect().Rebind(query), args...)
	require.NoError(t, err)
}

// createUser inserts an active user directly, skipping password hashing.
func (e *testEnv) createUser(t *testing.T, role models.UserRole, parentID *int64) *models.User {
	t.Helper()

	n := e.seq.Add(1)
	u := &models.User{
		Username:     fmt.Sprintf("%s-%d", role, n),
		Email:        fmt.Sprintf("%s-%d@example.com", role, n),
		PasswordHash: "x",
		Role:         role,
		Status:       models.StatusActive,
		ParentID:     parentID,
	}
	require.NoError(t, e.store.WithTx(context.Background(), func(tx *db.Tx) error {
		return tx.InsertUser(context.Background(), u)
	}))
	return u
}

func (e *testEnv) admin(t *testing.T) *models.User {
	return e.createUser(t, models.RoleSuperadmin, nil)
}

func (e *testEnv) agent(t *testing.T) *models.User {
	return e.createUser(t, models.RoleAgent, nil)
}

func (e *testEnv) child(t *testing.T, parent *models.User) *models.User {
	return e.createUser(t, models.RoleChild, &parent.ID)
}

// setBalances overwrites a user's balances without logging. Tests that
// reconcile must fund users through approved requests instead.
func (e *testEnv) setBalances(t *testing.T, userID int64, credit string, quota, today int64) {
	t.Helper()
	e.exec(t,
		"UPDATE users SET credit_balance = ?, quota_balance = ?, today_purchased = ? WHERE id = ?",
		decimal.RequireFromString(credit).Shift(2).IntPart(), quota, today, userID,
	)
}

func (e *testEnv) setPool(t *testing.T, available int64) {
	t.Helper()
	e.exec(t,
		"UPDATE pool SET available_quota = ?, initial_quota = ? WHERE id = ?",
		available, available, models.SingletonID,
	)
}

// fundCredit tops the user up through an approved credit request.
func (e *testEnv) fundCredit(t *testing.T, admin, user *models.User, amount string) {
	t.Helper()
	ctx := context.Background()
	req, err := e.requests.CreateCreditRequest(ctx, user.ID, decimal.RequireFromString(amount), "")
	require.NoError(t, err)
	_, err = e.requests.ResolveCreditRequest(ctx, req.ID, admin.ID, models.DecisionApprove, nil)
	require.NoError(t, err)
}

func (e *testEnv) user(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := e.users.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) pool(t *testing.T) *models.Pool {
	t.Helper()
	p, err := e.ledger.GetPool(context.Background())
	require.NoError(t, err)
	return p
}

func (e *testEnv) transactionCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.sqlDB.QueryRow("SELECT COUNT(*) FROM quota_transactions").Scan(&n))
	return n
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
