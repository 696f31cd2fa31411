package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Schema statements are idempotent so the server can run them on every boot.
// The UNIQUE (shop_id, device_id) constraint is load-bearing: device
// registration is a single INSERT ... ON CONFLICT upsert, so two concurrent
// session starts from the same device can never produce duplicate rows.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS shop_profiles (
		account_id UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		device_limit INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS device_records (
		id UUID PRIMARY KEY,
		shop_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		device_id TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT 'Unknown',
		browser_info TEXT NOT NULL DEFAULT 'Unknown',
		is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
		last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (shop_id, device_id)
	)`,
	// The global ban check filters on device_id alone, across all shops.
	`CREATE INDEX IF NOT EXISTS idx_device_records_device_id ON device_records (device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_device_records_last_active ON device_records (shop_id, last_active DESC)`,
}

// RunMigrations applies the schema statements in order.
func RunMigrations(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	log.Println("Database schema up to date")
	return nil
}
