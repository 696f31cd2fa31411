package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/udyogsetu/backend/internal/services"
)

type DeviceTrustHandler struct {
	trust     *services.DeviceTrustService
	auth      *services.AuthService
	validator *services.ValidationHelper
}

func NewDeviceTrustHandler(trust *services.DeviceTrustService, auth *services.AuthService) *DeviceTrustHandler {
	return &DeviceTrustHandler{
		trust:     trust,
		auth:      auth,
		validator: services.NewValidationHelper(),
	}
}

// TrustCheckRequest is the session-bootstrap payload. The storage quota is
// client-measured (only the browser can run the estimate); the policy
// comparison stays server-side.
type TrustCheckRequest struct {
	StorageQuotaBytes int64                       `json:"storageQuotaBytes" validate:"gte=0"`
	Signals           services.FingerprintSignals `json:"signals" validate:"required"`
}

// CheckDevice runs the device trust gate for the current session
// @Summary Device trust check
// @Description Run the session-bootstrap device check. Shop sessions on a rejected device are terminated.
// @Tags device-trust
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TrustCheckRequest true "Client environment signals"
// @Success 200 {object} services.TrustResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.TrustResult "Policy violation, session terminated"
// @Failure 500 {object} services.ErrorResponse
// @Router /device-trust/check [post]
func (h *DeviceTrustHandler) CheckDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		log.Printf("[TRUST] CheckDevice - Unauthorized: userID missing")
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	token, _ := r.Context().Value("token").(string)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TrustCheckRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[TRUST] CheckDevice - Decode error: %v", err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[TRUST] CheckDevice - Multiple JSON objects detected")
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		log.Printf("[TRUST] CheckDevice - Validation error: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// The account row is the authority for role, not the token claim.
	account, err := h.auth.GetAccountByID(r.Context(), userID)
	if err != nil {
		log.Printf("[TRUST] CheckDevice - Account lookup failed for %s: %v", userID, err)
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	result, err := h.trust.RunCheck(r.Context(), *account, services.TrustCheckInput{
		UserAgent:         r.UserAgent(),
		RemoteIP:          r.RemoteAddr,
		Token:             token,
		StorageQuotaBytes: req.StorageQuotaBytes,
		Signals:           req.Signals,
	})
	if err != nil {
		log.Printf("[TRUST] CheckDevice - Registration error for %s: %v", userID, err)
		services.SendErrorResponse(w, "Device registration failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !result.Admitted {
		w.WriteHeader(http.StatusForbidden)
	}
	json.NewEncoder(w).Encode(result)
}
