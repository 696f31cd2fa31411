package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/udyogsetu/backend/internal/config"
	"github.com/udyogsetu/backend/internal/models"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	trust     *config.DeviceTrustConfig
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"shop@example.com"` // Account email
	Password string `json:"password" validate:"required,min=8" example:"password123"`   // Account password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"shop@example.com"`               // Account email
	Password string `json:"password" validate:"required,min=8" example:"password123"`                 // Account password
	FullName string `json:"fullName" validate:"required,min=2" example:"Asha Traders"`                // Display name
	Role     string `json:"role" validate:"required,oneof=admin provider seeker shop" example:"shop"` // Account role
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token   string         `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	Account models.Account `json:"account"`                                                 // Account information
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		trust:     config.LoadDeviceTrustConfig(),
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles account registration
// @Summary Register a new account
// @Description Register a new account with email, password, name and role. Accounts start unapproved and wait for an administrator.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 409 {string} string "Email already exists"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Registration request for email: %s, role: %s", req.Email, req.Role)

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	role := models.Role(req.Role)
	accountID := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Approved starts false; only an admin flips it.
	_, err = tx.Exec("INSERT INTO accounts (id, email, password, full_name, role, approved) VALUES ($1, $2, $3, $4, $5, FALSE)",
		accountID, strings.ToLower(req.Email), hashedPassword, req.FullName, string(role))
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	if role == models.RoleShop {
		_, err = tx.Exec("INSERT INTO shop_profiles (account_id, device_limit) VALUES ($1, $2)",
			accountID, s.trust.DefaultDeviceLimit)
		if err != nil {
			log.Printf("[AUTH] Shop profile creation failed for %s: %v", req.Email, err)
			s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
			return
		}
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Account created successfully - ID: %s, Email: %s", accountID, req.Email)

	token, err := generateJWT(accountID, role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for account %s: %v", accountID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		Account: models.Account{
			ID:       accountID,
			Email:    strings.ToLower(req.Email),
			FullName: req.FullName,
			Role:     role,
			Approved: false,
		},
	}

	log.Printf("[AUTH] Registration successful for account %s", accountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Login handles account authentication
// @Summary Login
// @Description Authenticate an account with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Login request for email: %s", req.Email)

	var account models.Account
	var hashedPassword string
	var role string
	err := s.db.QueryRow("SELECT id, email, full_name, role, approved, password FROM accounts WHERE email = $1",
		strings.ToLower(req.Email)).Scan(&account.ID, &account.Email, &account.FullName, &role, &account.Approved, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] Account not found for email: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}
	account.Role = models.Role(role)

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for account: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	log.Printf("[AUTH] Password verified for account ID: %s", account.ID)

	token, err := generateJWT(account.ID, account.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for account %s: %v", account.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token:   token,
		Account: account,
	}

	log.Printf("[AUTH] Login successful for account %s", account.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Logout handles logout
// @Summary Logout
// @Description Logout and blacklist the presented token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetAccount retrieves the authenticated account
// @Summary Get account details
// @Description Get the authenticated account's information
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account "Account details"
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/account [get]
func (s *AuthService) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		log.Printf("[AUTH] Unauthorized account request - no account ID in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	log.Printf("[AUTH] Fetching account details for ID: %s", accountID)
	var account models.Account
	var role string
	err := s.db.QueryRow("SELECT id, email, full_name, role, approved, created_at, updated_at FROM accounts WHERE id = $1",
		accountID).Scan(&account.ID, &account.Email, &account.FullName, &role, &account.Approved, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("[AUTH] Account not found for ID: %s", accountID)
			http.Error(w, "Account not found", http.StatusNotFound)
		} else {
			log.Printf("[AUTH] Failed to fetch account details for ID %s: %v", accountID, err)
			http.Error(w, "Failed to fetch account details", http.StatusInternalServerError)
		}
		return
	}
	account.Role = models.Role(role)

	log.Printf("[AUTH] Successfully fetched account details for: %s (ID: %s)", account.Email, account.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// GetAccountByID resolves {role, approved} for another component. Callers
// treat a missing row or query failure as a denial.
func (s *AuthService) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	var account models.Account
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, full_name, role, approved FROM accounts WHERE id = $1",
		accountID).Scan(&account.ID, &account.Email, &account.FullName, &role, &account.Approved)
	if err != nil {
		return nil, err
	}
	account.Role = models.Role(role)
	return &account, nil
}

func generateJWT(accountID string, role models.Role) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": accountID,
		"role":    string(role),
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
