package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// InitDB opens and pings the database, exiting the process when it is
// unreachable.
func InitDB(dialect Dialect, dbURL string, logger zerolog.Logger) *sql.DB {
	db, err := Open(dialect, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", string(dialect)).Msg("Could not connect to database")
	}

	logger.Info().Str("driver", string(dialect)).Msg("Connected to database")
	return db
}

func Open(dialect Dialect, dbURL string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// sqlite has a single writer; one connection keeps transactions
		// serialized instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database not responding: %w", err)
	}

	return db, nil
}

// Money columns (credit, prices, costs) hold integer cents.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{id}},
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL,
		parent_id BIGINT NULL,
		credit_balance BIGINT NOT NULL DEFAULT 0,
		quota_balance BIGINT NOT NULL DEFAULT 0,
		today_purchased BIGINT NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		CHECK (credit_balance >= 0),
		CHECK (quota_balance >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS pool (
		id INT PRIMARY KEY,
		available_quota BIGINT NOT NULL,
		initial_quota BIGINT NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		updated_at {{ts}} NOT NULL,
		CHECK (available_quota >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS system_settings (
		id INT PRIMARY KEY,
		credit_price BIGINT NOT NULL,
		quota_price BIGINT NOT NULL,
		daily_purchase_limit BIGINT NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quota_transactions (
		id {{id}},
		tx_type VARCHAR(32) NOT NULL,
		quantity BIGINT NOT NULL,
		actor_id BIGINT NOT NULL,
		counterpart_id BIGINT NULL,
		listing_id BIGINT NULL,
		credit_cost BIGINT NOT NULL,
		pool_before BIGINT NULL,
		pool_after BIGINT NULL,
		actor_quota_before BIGINT NOT NULL,
		actor_quota_after BIGINT NOT NULL,
		actor_credit_before BIGINT NOT NULL,
		actor_credit_after BIGINT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quota_listings (
		id {{id}},
		seller_id BIGINT NOT NULL,
		quantity BIGINT NOT NULL,
		price_per_quota BIGINT NOT NULL,
		total_price BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		purchase_id BIGINT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		CHECK (quantity > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS quota_purchases (
		id {{id}},
		listing_id BIGINT NOT NULL,
		buyer_id BIGINT NOT NULL,
		seller_id BIGINT NOT NULL,
		quantity BIGINT NOT NULL,
		price_per_quota BIGINT NOT NULL,
		total_price BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		resolved_by BIGINT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credit_requests (
		id {{id}},
		requester_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		approved_amount BIGINT NULL,
		note VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		resolved_by BIGINT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quota_requests (
		id {{id}},
		requester_id BIGINT NOT NULL,
		parent_id BIGINT NOT NULL,
		quantity BIGINT NOT NULL,
		approved_quantity BIGINT NULL,
		note VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		resolved_by BIGINT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX idx_users_parent ON users (parent_id)`,
	`CREATE INDEX idx_transactions_actor ON quota_transactions (actor_id, created_at)`,
	`CREATE INDEX idx_transactions_counterpart ON quota_transactions (counterpart_id, created_at)`,
	`CREATE INDEX idx_listings_status ON quota_listings (status, created_at)`,
	`CREATE INDEX idx_purchases_status ON quota_purchases (status)`,
	`CREATE INDEX idx_credit_requests_status ON credit_requests (status)`,
	`CREATE INDEX idx_quota_requests_parent ON quota_requests (parent_id, status)`,
}

// mysqlDuplicateKeyName is returned by MySQL when an index already exists.
const mysqlDuplicateKeyName = 1061

func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, q := range tables {
		if _, err := db.ExecContext(ctx, dialect.ddl(q)); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	for _, q := range indexes {
		if dialect != MySQL {
			q = "CREATE INDEX IF NOT EXISTS " + q[len("CREATE INDEX "):]
		}
		_, err := db.ExecContext(ctx, q)
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateKeyName {
			continue
		}
		if err != nil {
			return fmt.Errorf("index migration failed: %w", err)
		}
	}
	return nil
}
