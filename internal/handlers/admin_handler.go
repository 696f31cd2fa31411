package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/udyogsetu/backend/internal/models"
	"github.com/udyogsetu/backend/internal/services"
)

// AdminHandler is the operator console's HTTP surface: the per-shop device
// list, ban/unban/delete on device records, account approval, and the
// advisory device limit.
type AdminHandler struct {
	db        *sql.DB
	registry  *services.DeviceRegistryService
	validator *services.ValidationHelper
}

func NewAdminHandler(db *sql.DB, registry *services.DeviceRegistryService) *AdminHandler {
	return &AdminHandler{
		db:        db,
		registry:  registry,
		validator: services.NewValidationHelper(),
	}
}

// DeviceListResponse pairs the records with the advisory limit so the
// operator can compare the two; nothing enforces the limit mechanically.
type DeviceListResponse struct {
	Devices     []models.DeviceRecord `json:"devices"`
	DeviceLimit int                   `json:"deviceLimit"`
	ActiveCount int                   `json:"activeCount"`
}

// ListShopDevices lists a shop's devices
// @Summary List shop devices
// @Description List a shop's device records, most recently active first, with the advisory device limit
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param shopID path string true "Shop account ID"
// @Success 200 {object} DeviceListResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/shops/{shopID}/devices [get]
func (h *AdminHandler) ListShopDevices(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	devices, err := h.registry.ListByShop(r.Context(), shopID)
	if err != nil {
		log.Printf("[ADMIN] Device list failed for shop %s: %v", shopID, err)
		services.SendErrorResponse(w, "Failed to list devices", http.StatusInternalServerError, nil)
		return
	}

	limit, err := h.registry.DeviceLimit(r.Context(), shopID)
	if err != nil {
		if errors.Is(err, services.ErrDeviceRecordNotFound) {
			services.SendErrorResponse(w, "Shop not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ADMIN] Device limit lookup failed for shop %s: %v", shopID, err)
		services.SendErrorResponse(w, "Failed to read device limit", http.StatusInternalServerError, nil)
		return
	}

	active, err := h.registry.ActiveCount(r.Context(), shopID)
	if err != nil {
		log.Printf("[ADMIN] Active device count failed for shop %s: %v", shopID, err)
		services.SendErrorResponse(w, "Failed to count devices", http.StatusInternalServerError, nil)
		return
	}

	if devices == nil {
		devices = []models.DeviceRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DeviceListResponse{
		Devices:     devices,
		DeviceLimit: limit,
		ActiveCount: active,
	})
}

// BlockDevice bans a device record
// @Summary Block a device
// @Description Set the ban flag on a device record. The device is banned for every shop account from its next trust check.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param deviceRecordID path string true "Device record ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/devices/{deviceRecordID}/block [put]
func (h *AdminHandler) BlockDevice(w http.ResponseWriter, r *http.Request) {
	h.setDeviceBlocked(w, r, true)
}

// UnblockDevice lifts the ban on a device record
// @Summary Unblock a device
// @Description Clear the ban flag on a device record
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param deviceRecordID path string true "Device record ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/devices/{deviceRecordID}/unblock [put]
func (h *AdminHandler) UnblockDevice(w http.ResponseWriter, r *http.Request) {
	h.setDeviceBlocked(w, r, false)
}

func (h *AdminHandler) setDeviceBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	recordID := chi.URLParam(r, "deviceRecordID")

	if err := h.registry.SetBlocked(r.Context(), recordID, blocked); err != nil {
		if errors.Is(err, services.ErrDeviceRecordNotFound) {
			services.SendErrorResponse(w, "Device record not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ADMIN] Block update failed for record %s: %v", recordID, err)
		services.SendErrorResponse(w, "Failed to update device", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Device updated"})
}

// DeleteDevice removes a device record
// @Summary Delete a device record
// @Description Permanently remove a device record. The same physical device is treated as brand new at its next trust check.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param deviceRecordID path string true "Device record ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/devices/{deviceRecordID} [delete]
func (h *AdminHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "deviceRecordID")

	if err := h.registry.Delete(r.Context(), recordID); err != nil {
		if errors.Is(err, services.ErrDeviceRecordNotFound) {
			services.SendErrorResponse(w, "Device record not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ADMIN] Delete failed for record %s: %v", recordID, err)
		services.SendErrorResponse(w, "Failed to delete device", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Device deleted"})
}

// SetApprovalRequest toggles an account's approval flag.
type SetApprovalRequest struct {
	Approved bool `json:"approved"`
}

// SetAccountApproval approves or revokes an account
// @Summary Set account approval
// @Description Flip an account's approval flag. Unapproved accounts are denied by every guarded route regardless of role.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountID path string true "Account ID"
// @Param request body SetApprovalRequest true "Approval flag"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/accounts/{accountID}/approve [put]
func (h *AdminHandler) SetAccountApproval(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SetApprovalRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	res, err := h.db.ExecContext(r.Context(),
		"UPDATE accounts SET approved = $1, updated_at = NOW() WHERE id = $2", req.Approved, accountID)
	if err != nil {
		log.Printf("[ADMIN] Approval update failed for account %s: %v", accountID, err)
		services.SendErrorResponse(w, "Failed to update account", http.StatusInternalServerError, nil)
		return
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[ADMIN] Account %s approved=%v", accountID, req.Approved)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Account updated"})
}

// SetDeviceLimitRequest carries the advisory per-shop device cap.
type SetDeviceLimitRequest struct {
	DeviceLimit int `json:"deviceLimit" validate:"required,gte=1"`
}

// SetShopDeviceLimit updates the advisory device cap
// @Summary Set shop device limit
// @Description Update the advisory cap on a shop's trusted devices. The cap is operator guidance; the trust gate does not enforce it.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param shopID path string true "Shop account ID"
// @Param request body SetDeviceLimitRequest true "New limit"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/shops/{shopID}/device-limit [put]
func (h *AdminHandler) SetShopDeviceLimit(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SetDeviceLimitRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.registry.SetDeviceLimit(r.Context(), shopID, req.DeviceLimit); err != nil {
		if errors.Is(err, services.ErrDeviceRecordNotFound) {
			services.SendErrorResponse(w, "Shop not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ADMIN] Device limit update failed for shop %s: %v", shopID, err)
		services.SendErrorResponse(w, "Failed to update device limit", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Device limit updated"})
}
