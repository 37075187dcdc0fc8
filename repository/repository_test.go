package repository

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT UNIQUE,
    username TEXT,
    name TEXT,
    image TEXT,
    password_hash TEXT,
    roles TEXT,
    attributes TEXT,
    login_attempts INTEGER NOT NULL DEFAULT 0,
    login_attempt_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`
	sqliteCreateProviderAccounts = `CREATE TABLE provider_accounts (
    provider_id TEXT NOT NULL,
    provider_account_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    access_token TEXT,
    refresh_token TEXT,
    token_type TEXT,
    token_expires_at TIMESTAMP NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    PRIMARY KEY (provider_id, provider_account_id)
);`
	sqliteCreateRememberTokens = `CREATE TABLE remember_tokens (
    token TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
	sqliteCreateVerificationTokens = `CREATE TABLE verification_tokens (
    identifier TEXT NOT NULL PRIMARY KEY,
    token TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
)

func setupDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, ddl := range []string{
		sqliteCreateUsers,
		sqliteCreateProviderAccounts,
		sqliteCreateRememberTokens,
		sqliteCreateVerificationTokens,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return bunDB, cleanup
}
