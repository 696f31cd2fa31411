package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// ErrUnidentifiableDevice is returned when the reported signal set is too
// thin to derive a meaningful fingerprint. The trust gate treats this as a
// rejection: an unidentifiable device cannot be checked against the ban list.
var ErrUnidentifiableDevice = errors.New("device signals insufficient for fingerprinting")

// FingerprintSignals are the hardware-leaning characteristics the client
// reports at session bootstrap. CachedDeviceID is whatever the client still
// has in local storage; it is advisory only and never trusted.
type FingerprintSignals struct {
	Platform       string   `json:"platform" example:"Win32"`
	CPUCores       int      `json:"cpuCores" example:"8"`
	DeviceMemoryGB int      `json:"deviceMemoryGb" example:"16"`
	GPURenderer    string   `json:"gpuRenderer" example:"ANGLE (NVIDIA GeForce GTX 1650)"`
	ScreenWidth    int      `json:"screenWidth" example:"1920"`
	ScreenHeight   int      `json:"screenHeight" example:"1080"`
	ColorDepth     int      `json:"colorDepth" example:"24"`
	Timezone       string   `json:"timezone" example:"Asia/Kolkata"`
	Languages      []string `json:"languages" example:"en-IN,en,hi"`
	CanvasHash     string   `json:"canvasHash"`
	CachedDeviceID string   `json:"cachedDeviceId,omitempty"`
}

type FingerprintService struct {
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewFingerprintService(redisClient *redis.Client, cacheTTL time.Duration) *FingerprintService {
	return &FingerprintService{
		redis:    redisClient,
		cacheTTL: cacheTTL,
	}
}

// Derive computes the canonical device fingerprint from the reported
// signals: HMAC-SHA256 over the normalized signal tuple, keyed with the
// server-side secret. The same physical device + browser yields the same
// value across sessions; the keyed hash keeps a client from minting ids for
// devices it has never touched.
func (s *FingerprintService) Derive(signals FingerprintSignals) (string, error) {
	parts := normalizeSignals(signals)
	if countNonEmpty(parts) < 3 {
		return "", ErrUnidentifiableDevice
	}

	secret := viper.GetString("fingerprint.secret")
	if secret == "" {
		return "", errors.New("fingerprint secret is not configured")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// RememberAdvisory caches the derived fingerprint per account. The cache is
// a diagnostic aid only: a mismatch between the client's cached id and the
// freshly derived one is logged, never acted on, since local storage is
// clearable and attacker-writable.
func (s *FingerprintService) RememberAdvisory(ctx context.Context, accountID, deviceID, clientCached string) {
	if clientCached != "" && clientCached != deviceID {
		log.Printf("[FINGERPRINT] Cached device id drift for account %s (client copy stale or tampered)", accountID)
	}

	if s.redis == nil {
		return
	}

	key := fmt.Sprintf("devicefp:%s", accountID)
	if err := s.redis.Set(ctx, key, deviceID, s.cacheTTL).Err(); err != nil {
		log.Printf("[FINGERPRINT] Failed to cache fingerprint for account %s: %v", accountID, err)
	}
}

func normalizeSignals(signals FingerprintSignals) []string {
	languages := make([]string, 0, len(signals.Languages))
	for _, lang := range signals.Languages {
		if trimmed := strings.ToLower(strings.TrimSpace(lang)); trimmed != "" {
			languages = append(languages, trimmed)
		}
	}
	sort.Strings(languages)

	normInt := func(v int) string {
		if v <= 0 {
			return ""
		}
		return strconv.Itoa(v)
	}

	return []string{
		strings.ToLower(strings.TrimSpace(signals.Platform)),
		normInt(signals.CPUCores),
		normInt(signals.DeviceMemoryGB),
		strings.ToLower(strings.TrimSpace(signals.GPURenderer)),
		normInt(signals.ScreenWidth),
		normInt(signals.ScreenHeight),
		normInt(signals.ColorDepth),
		strings.ToLower(strings.TrimSpace(signals.Timezone)),
		strings.Join(languages, ","),
		strings.ToLower(strings.TrimSpace(signals.CanvasHash)),
	}
}

func countNonEmpty(parts []string) int {
	n := 0
	for _, p := range parts {
		if p != "" {
			n++
		}
	}
	return n
}
