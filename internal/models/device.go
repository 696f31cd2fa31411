package models

import "time"

// DeviceRecord is one row per (shop account, device fingerprint) pair.
// Uniqueness of the pair is enforced by the device_records table constraint;
// registration goes through a single-statement upsert.
type DeviceRecord struct {
	ID          string    `json:"id"`                                  // Record ID
	ShopID      string    `json:"shopId"`                              // Owning shop account
	DeviceID    string    `json:"deviceId"`                            // Derived fingerprint
	IPAddress   string    `json:"ipAddress" example:"102.89.33.12"`    // Last observed IP
	BrowserInfo string    `json:"browserInfo" example:"Mozilla/5.0 ("` // Truncated UA descriptor
	IsBlocked   bool      `json:"isBlocked"`                           // A blocked device is banned for every shop
	LastActive  time.Time `json:"lastActive"`
	CreatedAt   time.Time `json:"createdAt"`
}
