package models

import "time"

// Role is the closed set of account kinds. It is assigned at signup and
// never changed afterwards.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RoleSeeker   Role = "seeker"
	RoleShop     Role = "shop"
)

// Valid reports whether r is one of the known account roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProvider, RoleSeeker, RoleShop:
		return true
	}
	return false
}

type Account struct {
	ID        string    `json:"id" example:"7f9c24e5-2f43-4a1b-9c0d-13d9a50f2b61"` // Account ID
	Email     string    `json:"email" example:"shop@example.com"`                  // Account email
	FullName  string    `json:"fullName" example:"Asha Traders"`                   // Display name
	Role      Role      `json:"role" example:"shop"`                               // admin | provider | seeker | shop
	Approved  bool      `json:"approved"`                                          // Flipped only by an admin
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ShopProfile carries shop-only settings. DeviceLimit is advisory: it is
// shown to admins next to the device list, never enforced at login.
type ShopProfile struct {
	AccountID   string `json:"accountId"`
	DeviceLimit int    `json:"deviceLimit" example:"1"`
}
