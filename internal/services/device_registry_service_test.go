package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var deviceColumns = []string{"id", "shop_id", "device_id", "ip_address", "browser_info", "is_blocked", "last_active", "created_at"}

func TestDeviceRegistryService_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDeviceRegistryService(db)
	ctx := context.Background()

	t.Run("first sighting inserts", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("INSERT INTO device_records").
			WithArgs(sqlmock.AnyArg(), "shop-1", "fp-abc", "102.89.33.12", "Mozilla/5.0").
			WillReturnRows(sqlmock.NewRows(deviceColumns).
				AddRow("rec-1", "shop-1", "fp-abc", "102.89.33.12", "Mozilla/5.0", false, now, now))

		rec, err := service.Upsert(ctx, "shop-1", "fp-abc", "102.89.33.12", "Mozilla/5.0")
		assert.NoError(t, err)
		assert.Equal(t, "rec-1", rec.ID)
		assert.False(t, rec.IsBlocked)
	})

	t.Run("repeat sighting keeps one row and refreshes metadata", func(t *testing.T) {
		created := time.Now().Add(-24 * time.Hour)
		seen := time.Now()
		mock.ExpectQuery("INSERT INTO device_records").
			WithArgs(sqlmock.AnyArg(), "shop-1", "fp-abc", "102.89.40.7", "Mozilla/5.0").
			WillReturnRows(sqlmock.NewRows(deviceColumns).
				AddRow("rec-1", "shop-1", "fp-abc", "102.89.40.7", "Mozilla/5.0", false, seen, created))

		rec, err := service.Upsert(ctx, "shop-1", "fp-abc", "102.89.40.7", "Mozilla/5.0")
		assert.NoError(t, err)
		assert.Equal(t, "rec-1", rec.ID)
		assert.Equal(t, "102.89.40.7", rec.IPAddress)
		assert.True(t, rec.LastActive.After(rec.CreatedAt))
	})

	t.Run("store failure propagates", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO device_records").
			WillReturnError(errors.New("connection refused"))

		_, err := service.Upsert(ctx, "shop-1", "fp-abc", "102.89.40.7", "Mozilla/5.0")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRegistryService_GlobalBanCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDeviceRegistryService(db)
	ctx := context.Background()

	t.Run("banned under any shop", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("fp-abc").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		banned, err := service.GlobalBanCheck(ctx, "fp-abc")
		assert.NoError(t, err)
		assert.True(t, banned)
	})

	t.Run("clean device", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("fp-clean").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		banned, err := service.GlobalBanCheck(ctx, "fp-clean")
		assert.NoError(t, err)
		assert.False(t, banned)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("fp-abc").
			WillReturnError(errors.New("connection refused"))

		_, err := service.GlobalBanCheck(ctx, "fp-abc")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRegistryService_SetBlocked(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDeviceRegistryService(db)
	ctx := context.Background()

	t.Run("block", func(t *testing.T) {
		mock.ExpectExec("UPDATE device_records SET is_blocked").
			WithArgs(true, "rec-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.SetBlocked(ctx, "rec-1", true))
	})

	t.Run("blocking twice still succeeds", func(t *testing.T) {
		mock.ExpectExec("UPDATE device_records SET is_blocked").
			WithArgs(true, "rec-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.SetBlocked(ctx, "rec-1", true))
	})

	t.Run("unknown record", func(t *testing.T) {
		mock.ExpectExec("UPDATE device_records SET is_blocked").
			WithArgs(false, "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.SetBlocked(ctx, "missing", false)
		assert.ErrorIs(t, err, ErrDeviceRecordNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRegistryService_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDeviceRegistryService(db)
	ctx := context.Background()

	t.Run("deletes record", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM device_records").
			WithArgs("rec-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.Delete(ctx, "rec-1"))
	})

	t.Run("no ban memory after delete", func(t *testing.T) {
		// The deleted (and previously blocked) fingerprint no longer matches
		// any row, so the global ban check comes back clean.
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("fp-was-banned").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		banned, err := service.GlobalBanCheck(ctx, "fp-was-banned")
		assert.NoError(t, err)
		assert.False(t, banned)
	})

	t.Run("unknown record", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM device_records").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.Delete(ctx, "missing")
		assert.ErrorIs(t, err, ErrDeviceRecordNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRegistryService_ListByShop(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDeviceRegistryService(db)
	ctx := context.Background()

	t.Run("most recent first", func(t *testing.T) {
		newer := time.Now()
		older := newer.Add(-2 * time.Hour)
		mock.ExpectQuery("SELECT id, shop_id, device_id, ip_address, browser_info, is_blocked, last_active, created_at FROM device_records").
			WithArgs("shop-1").
			WillReturnRows(sqlmock.NewRows(deviceColumns).
				AddRow("rec-2", "shop-1", "fp-new", "10.0.0.2", "Firefox", false, newer, older).
				AddRow("rec-1", "shop-1", "fp-old", "10.0.0.1", "Chrome", true, older, older))

		records, err := service.ListByShop(ctx, "shop-1")
		assert.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Equal(t, "rec-2", records[0].ID)
		assert.True(t, records[0].LastActive.After(records[1].LastActive))
		assert.True(t, records[1].IsBlocked)
	})

	t.Run("empty shop", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, shop_id, device_id, ip_address, browser_info, is_blocked, last_active, created_at FROM device_records").
			WithArgs("shop-empty").
			WillReturnRows(sqlmock.NewRows(deviceColumns))

		records, err := service.ListByShop(ctx, "shop-empty")
		assert.NoError(t, err)
		assert.Empty(t, records)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRegistryService_DeviceLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDeviceRegistryService(db)
	ctx := context.Background()

	t.Run("read", func(t *testing.T) {
		mock.ExpectQuery("SELECT device_limit FROM shop_profiles").
			WithArgs("shop-1").
			WillReturnRows(sqlmock.NewRows([]string{"device_limit"}).AddRow(3))

		limit, err := service.DeviceLimit(ctx, "shop-1")
		assert.NoError(t, err)
		assert.Equal(t, 3, limit)
	})

	t.Run("unknown shop", func(t *testing.T) {
		mock.ExpectQuery("SELECT device_limit FROM shop_profiles").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := service.DeviceLimit(ctx, "missing")
		assert.ErrorIs(t, err, ErrDeviceRecordNotFound)
	})

	t.Run("update", func(t *testing.T) {
		mock.ExpectExec("UPDATE shop_profiles SET device_limit").
			WithArgs(5, "shop-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.SetDeviceLimit(ctx, "shop-1", 5))
	})

	t.Run("active count", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("shop-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		count, err := service.ActiveCount(ctx, "shop-1")
		assert.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
