package config

import (
	"os"
	"strconv"
	"time"
)

type DeviceTrustConfig struct {
	MobileUAPattern      string
	PrivateQuotaBytes    int64
	BrowserInfoMaxLen    int
	FingerprintCacheTTL  time.Duration
	DefaultDeviceLimit   int
	UnknownValueSentinel string
}

func LoadDeviceTrustConfig() *DeviceTrustConfig {
	return &DeviceTrustConfig{
		MobileUAPattern:      getEnv("DEVICE_MOBILE_UA_PATTERN", `(?i)(android|iphone|ipad|ipod|windows phone|opera mini|blackberry|webos|mobile)`),
		PrivateQuotaBytes:    getEnvAsInt64("DEVICE_PRIVATE_QUOTA_BYTES", 120*1024*1024),
		BrowserInfoMaxLen:    getEnvAsInt("DEVICE_BROWSER_INFO_MAX_LEN", 120),
		FingerprintCacheTTL:  getEnvAsDuration("DEVICE_FINGERPRINT_CACHE_TTL", 24*time.Hour),
		DefaultDeviceLimit:   getEnvAsInt("DEVICE_DEFAULT_LIMIT", 1),
		UnknownValueSentinel: getEnv("DEVICE_UNKNOWN_SENTINEL", "Unknown"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
