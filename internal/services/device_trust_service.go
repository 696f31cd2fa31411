package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"github.com/udyogsetu/backend/internal/config"
	"github.com/udyogsetu/backend/internal/models"
)

// RejectionReason is the terminal policy outcome surfaced to the client when
// a shop session fails the trust check.
type RejectionReason string

const (
	ReasonMobileDevice    RejectionReason = "mobile-device"
	ReasonPrivateBrowsing RejectionReason = "private-browsing"
	ReasonDeviceBanned    RejectionReason = "device-banned"
	ReasonUnidentifiable  RejectionReason = "unidentifiable-device"
)

var rejectionMessages = map[RejectionReason]string{
	ReasonMobileDevice:    "Shop accounts can only be used from a desktop browser",
	ReasonPrivateBrowsing: "Shop accounts cannot be used in private browsing mode",
	ReasonDeviceBanned:    "This device has been blocked by an administrator",
	ReasonUnidentifiable:  "This device could not be verified",
}

// TrustResult is the outcome of one trust-gate run. When Admitted is false
// the presented session token has already been revoked.
type TrustResult struct {
	Admitted bool            `json:"admitted"`
	Reason   RejectionReason `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// TrustCheckInput carries everything one bootstrap call brings: the header
// and connection data the server observed plus the client-measured signals.
type TrustCheckInput struct {
	UserAgent         string
	RemoteIP          string
	Token             string
	StorageQuotaBytes int64
	Signals           FingerprintSignals
}

// DeviceTrustService runs the session-bootstrap check for shop accounts.
// The check order is fixed: environment and privacy policy first, then the
// fingerprint, then the global ban lookup, and only then the registration
// upsert. A banned device must never have its last_active refreshed as a
// side effect of being turned away.
type DeviceTrustService struct {
	registry    *DeviceRegistryService
	fingerprint *FingerprintService
	redis       *redis.Client
	config      *config.DeviceTrustConfig
	mobileUA    *regexp.Regexp
}

func NewDeviceTrustService(registry *DeviceRegistryService, fingerprint *FingerprintService, redisClient *redis.Client) *DeviceTrustService {
	cfg := config.LoadDeviceTrustConfig()
	return &DeviceTrustService{
		registry:    registry,
		fingerprint: fingerprint,
		redis:       redisClient,
		config:      cfg,
		mobileUA:    regexp.MustCompile(cfg.MobileUAPattern),
	}
}

// RunCheck executes the gate for one shop-account session. A policy
// rejection revokes the session token and comes back as a TrustResult; only
// a registration-write failure is returned as an error for the handler to
// surface.
func (s *DeviceTrustService) RunCheck(ctx context.Context, account models.Account, input TrustCheckInput) (*TrustResult, error) {
	if account.Role != models.RoleShop {
		// Nothing to enforce for other roles.
		return &TrustResult{Admitted: true}, nil
	}

	log.Printf("[TRUST] Check started for shop %s from IP %s", account.ID, input.RemoteIP)

	if s.mobileUA.MatchString(input.UserAgent) {
		log.Printf("[TRUST] Shop %s rejected: mobile user agent", account.ID)
		return s.reject(ctx, input.Token, ReasonMobileDevice), nil
	}

	if input.StorageQuotaBytes < s.config.PrivateQuotaBytes {
		log.Printf("[TRUST] Shop %s rejected: storage quota %d below threshold %d",
			account.ID, input.StorageQuotaBytes, s.config.PrivateQuotaBytes)
		return s.reject(ctx, input.Token, ReasonPrivateBrowsing), nil
	}

	deviceID, err := s.fingerprint.Derive(input.Signals)
	if err != nil {
		// An unidentifiable device cannot be checked against the ban list,
		// so it does not get in.
		log.Printf("[TRUST] Shop %s rejected: fingerprint derivation failed: %v", account.ID, err)
		return s.reject(ctx, input.Token, ReasonUnidentifiable), nil
	}
	s.fingerprint.RememberAdvisory(ctx, account.ID, deviceID, input.Signals.CachedDeviceID)

	banned, err := s.registry.GlobalBanCheck(ctx, deviceID)
	if err != nil {
		// Fail closed: an unreachable registry must not let a banned device
		// slip through during an outage.
		log.Printf("[TRUST] Shop %s rejected: ban check unavailable: %v", account.ID, err)
		return s.reject(ctx, input.Token, ReasonDeviceBanned), nil
	}
	if banned {
		log.Printf("[TRUST] Shop %s rejected: device %s is globally banned", account.ID, deviceID)
		return s.reject(ctx, input.Token, ReasonDeviceBanned), nil
	}

	ipAddress, browserInfo := s.collectMetadata(input)
	if _, err := s.registry.Upsert(ctx, account.ID, deviceID, ipAddress, browserInfo); err != nil {
		return nil, fmt.Errorf("device registration failed: %w", err)
	}

	log.Printf("[TRUST] Shop %s admitted on device %s", account.ID, deviceID)
	return &TrustResult{Admitted: true}, nil
}

// collectMetadata gathers the advisory ip/browser fields. Collection is
// best-effort: a missing value falls back to the sentinel and the trust
// decision proceeds regardless.
func (s *DeviceTrustService) collectMetadata(input TrustCheckInput) (string, string) {
	ipAddress := input.RemoteIP
	if ipAddress == "" {
		log.Printf("[TRUST] No remote IP observed, storing sentinel")
		ipAddress = s.config.UnknownValueSentinel
	}

	browserInfo := input.UserAgent
	if browserInfo == "" {
		browserInfo = s.config.UnknownValueSentinel
	}
	if len(browserInfo) > s.config.BrowserInfoMaxLen {
		browserInfo = browserInfo[:s.config.BrowserInfoMaxLen]
	}
	return ipAddress, browserInfo
}

// reject terminates the presented session and builds the policy response.
func (s *DeviceTrustService) reject(ctx context.Context, token string, reason RejectionReason) *TrustResult {
	s.terminateSession(ctx, token)
	return &TrustResult{
		Admitted: false,
		Reason:   reason,
		Message:  rejectionMessages[reason],
	}
}

// terminateSession blacklists the bearer token until it would have expired,
// the same mechanism logout uses. Failure to blacklist is logged, not fatal:
// the client is redirected to login either way and the next request repeats
// the gate.
func (s *DeviceTrustService) terminateSession(ctx context.Context, token string) {
	if s.redis == nil || token == "" {
		return
	}

	key := fmt.Sprintf("blacklist:%s", token)
	expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
	if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
		log.Printf("[TRUST] Failed to blacklist token: %v", err)
	}
}
