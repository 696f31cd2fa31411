package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/udyogsetu/backend/internal/models"
)

var ErrDeviceRecordNotFound = errors.New("device record not found")

// DeviceRegistryService owns the device_records table: the trust gate's ban
// check and registration upsert, and the admin console's list/block/delete
// surface.
type DeviceRegistryService struct {
	db *sql.DB
}

func NewDeviceRegistryService(db *sql.DB) *DeviceRegistryService {
	return &DeviceRegistryService{db: db}
}

// ListByShop returns every device record for a shop, most recently active
// first. The ordering matters to the admin console: its "this is probably
// the current session" heuristic is the first unblocked row.
func (s *DeviceRegistryService) ListByShop(ctx context.Context, shopID string) ([]models.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, device_id, ip_address, browser_info, is_blocked, last_active, created_at
		FROM device_records
		WHERE shop_id = $1
		ORDER BY last_active DESC
	`, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var records []models.DeviceRecord
	for rows.Next() {
		var rec models.DeviceRecord
		if err := rows.Scan(&rec.ID, &rec.ShopID, &rec.DeviceID, &rec.IPAddress, &rec.BrowserInfo, &rec.IsBlocked, &rec.LastActive, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SetBlocked flips the ban flag on a record. Idempotent: blocking an already
// blocked device succeeds. An open session for a newly banned device is not
// terminated here; the ban takes effect at that device's next trust check.
func (s *DeviceRegistryService) SetBlocked(ctx context.Context, recordID string, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE device_records SET is_blocked = $1 WHERE id = $2", blocked, recordID)
	if err != nil {
		return fmt.Errorf("failed to update block flag: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceRecordNotFound
	}

	log.Printf("[REGISTRY] Device record %s blocked=%v", recordID, blocked)
	return nil
}

// Delete removes a record permanently. The ban check only inspects existing
// rows, so deleting a blocked record makes the same physical device look
// brand new at its next trust check.
func (s *DeviceRegistryService) Delete(ctx context.Context, recordID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM device_records WHERE id = $1", recordID)
	if err != nil {
		return fmt.Errorf("failed to delete device record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceRecordNotFound
	}

	log.Printf("[REGISTRY] Device record %s deleted", recordID)
	return nil
}

// GlobalBanCheck reports whether any shop's record for this fingerprint
// carries the ban flag. The filter deliberately ignores shop_id: a device
// banned under one shop account is banned for all of them.
func (s *DeviceRegistryService) GlobalBanCheck(ctx context.Context, deviceID string) (bool, error) {
	var banned bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM device_records WHERE device_id = $1 AND is_blocked = TRUE)",
		deviceID).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("global ban check failed: %w", err)
	}
	return banned, nil
}

// Upsert registers a device sighting as one conditional write. On conflict
// of (shop_id, device_id) only the advisory metadata moves: ip_address,
// browser_info and last_active. is_blocked is untouched, and last_active
// never goes backwards.
func (s *DeviceRegistryService) Upsert(ctx context.Context, shopID, deviceID, ipAddress, browserInfo string) (*models.DeviceRecord, error) {
	var rec models.DeviceRecord
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO device_records (id, shop_id, device_id, ip_address, browser_info, is_blocked, last_active, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
		ON CONFLICT (shop_id, device_id) DO UPDATE
		SET ip_address = EXCLUDED.ip_address,
		    browser_info = EXCLUDED.browser_info,
		    last_active = GREATEST(device_records.last_active, EXCLUDED.last_active)
		RETURNING id, shop_id, device_id, ip_address, browser_info, is_blocked, last_active, created_at
	`, uuid.NewString(), shopID, deviceID, ipAddress, browserInfo).Scan(
		&rec.ID, &rec.ShopID, &rec.DeviceID, &rec.IPAddress, &rec.BrowserInfo, &rec.IsBlocked, &rec.LastActive, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device record: %w", err)
	}
	return &rec, nil
}

// ActiveCount counts a shop's unblocked devices, for display next to the
// advisory device limit.
func (s *DeviceRegistryService) ActiveCount(ctx context.Context, shopID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM device_records WHERE shop_id = $1 AND is_blocked = FALSE",
		shopID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active devices: %w", err)
	}
	return count, nil
}

// DeviceLimit returns the shop's configured cap on trusted devices. The cap
// is advisory metadata for the operator; the trust gate never consults it.
func (s *DeviceRegistryService) DeviceLimit(ctx context.Context, shopID string) (int, error) {
	var limit int
	err := s.db.QueryRowContext(ctx,
		"SELECT device_limit FROM shop_profiles WHERE account_id = $1", shopID).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, ErrDeviceRecordNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read device limit: %w", err)
	}
	return limit, nil
}

func (s *DeviceRegistryService) SetDeviceLimit(ctx context.Context, shopID string, limit int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE shop_profiles SET device_limit = $1 WHERE account_id = $2", limit, shopID)
	if err != nil {
		return fmt.Errorf("failed to update device limit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceRecordNotFound
	}
	return nil
}
