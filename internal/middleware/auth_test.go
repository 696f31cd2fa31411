package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/udyogsetu/backend/internal/models"
)

func signTestToken(t *testing.T, accountID string, role models.Role) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": accountID,
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	assert.NoError(t, err)
	return signed
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")

	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	t.Run("valid token admitted with context set", func(t *testing.T) {
		InitAuthMiddleware(db, nil)

		var gotUserID, gotRole string
		handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserID, _ = r.Context().Value("userID").(string)
			gotRole, _ = r.Context().Value("role").(string)
			w.WriteHeader(http.StatusOK)
		}))

		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Bearer "+signTestToken(t, "acct-1", models.RoleShop))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "acct-1", gotUserID)
		assert.Equal(t, "shop", gotRole)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		InitAuthMiddleware(db, nil)
		handler := AuthMiddleware(okHandler())

		r := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		InitAuthMiddleware(db, nil)
		handler := AuthMiddleware(okHandler())

		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("blacklisted token rejected", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		InitAuthMiddleware(db, redisClient)
		defer InitAuthMiddleware(db, nil)

		token := signTestToken(t, "acct-1", models.RoleShop)
		redisMock.ExpectExists("blacklist:" + token).SetVal(1)

		handler := AuthMiddleware(okHandler())

		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestRequireRoles(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")

	withUser := func(r *http.Request, userID string) *http.Request {
		return r.WithContext(context.WithValue(r.Context(), "userID", userID))
	}

	t.Run("approved account with allowed role admitted", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		InitAuthMiddleware(db, nil)

		mock.ExpectQuery("SELECT role, approved FROM accounts").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"role", "approved"}).AddRow("admin", true))

		handler := RequireRoles(models.RoleAdmin)(okHandler())
		r := withUser(httptest.NewRequest("GET", "/admin", nil), "acct-1")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unapproved account denied regardless of role", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		InitAuthMiddleware(db, nil)

		mock.ExpectQuery("SELECT role, approved FROM accounts").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"role", "approved"}).AddRow("admin", false))

		handler := RequireRoles(models.RoleAdmin)(okHandler())
		r := withUser(httptest.NewRequest("GET", "/admin", nil), "acct-1")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("role outside allow-list denied", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		InitAuthMiddleware(db, nil)

		mock.ExpectQuery("SELECT role, approved FROM accounts").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"role", "approved"}).AddRow("seeker", true))

		handler := RequireRoles(models.RoleAdmin, models.RoleProvider)(okHandler())
		r := withUser(httptest.NewRequest("GET", "/admin", nil), "acct-1")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("empty allow-list admits any approved account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		InitAuthMiddleware(db, nil)

		mock.ExpectQuery("SELECT role, approved FROM accounts").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"role", "approved"}).AddRow("seeker", true))

		handler := RequireRoles()(okHandler())
		r := withUser(httptest.NewRequest("GET", "/any", nil), "acct-1")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("lookup failure fails closed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		InitAuthMiddleware(db, nil)

		mock.ExpectQuery("SELECT role, approved FROM accounts").
			WithArgs("acct-1").
			WillReturnError(errors.New("connection refused"))

		handler := RequireRoles(models.RoleAdmin)(okHandler())
		r := withUser(httptest.NewRequest("GET", "/admin", nil), "acct-1")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no session denied", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		InitAuthMiddleware(db, nil)

		handler := RequireRoles(models.RoleAdmin)(okHandler())
		r := httptest.NewRequest("GET", "/admin", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("revocation observed on the next request", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		InitAuthMiddleware(db, nil)

		// First navigation: approved. Second navigation after an admin
		// revokes approval: denied. Nothing is cached between the two.
		mock.ExpectQuery("SELECT role, approved FROM accounts").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"role", "approved"}).AddRow("shop", true))
		mock.ExpectQuery("SELECT role, approved FROM accounts").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"role", "approved"}).AddRow("shop", false))

		handler := RequireRoles(models.RoleShop)(okHandler())

		r := withUser(httptest.NewRequest("GET", "/shop", nil), "acct-1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)

		r = withUser(httptest.NewRequest("GET", "/shop", nil), "acct-1")
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
