package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/udyogsetu/backend/docs"
	"github.com/udyogsetu/backend/internal/config"
	"github.com/udyogsetu/backend/internal/database"
	"github.com/udyogsetu/backend/internal/handlers"
	mW "github.com/udyogsetu/backend/internal/middleware"
	"github.com/udyogsetu/backend/internal/models"
	"github.com/udyogsetu/backend/internal/services"
)

// @title Udyog Setu Portal API
// @version 1.0
// @description Job and scheme portal backend with shop device trust enforcement
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("fingerprint.secret", "FINGERPRINT_SECRET")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	if viper.GetString("fingerprint.secret") == "" {
		log.Fatal("FINGERPRINT_SECRET must be set")
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Udyog Setu Portal API"
	docs.SwaggerInfo.Description = "Job and scheme portal backend with shop device trust enforcement"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	trustConfig := config.LoadDeviceTrustConfig()
	fingerprintService := services.NewFingerprintService(redisClient, trustConfig.FingerprintCacheTTL)
	registryService := services.NewDeviceRegistryService(db)
	trustService := services.NewDeviceTrustService(registryService, fingerprintService, redisClient)
	authService := services.NewAuthService(db, redisClient)
	deviceHandler := handlers.NewDeviceTrustHandler(trustService, authService)
	adminHandler := handlers.NewAdminHandler(db, registryService)

	// Initialize auth middleware with Postgres and Redis
	mW.InitAuthMiddleware(db, redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetAccount)

			// Session bootstrap: run once per shop-session start
			r.Post("/device-trust/check", deviceHandler.CheckDevice)

			// Admin console: approved admin accounts only
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRoles(models.RoleAdmin))

				r.Get("/admin/shops/{shopID}/devices", adminHandler.ListShopDevices)
				r.Put("/admin/shops/{shopID}/device-limit", adminHandler.SetShopDeviceLimit)
				r.Put("/admin/devices/{deviceRecordID}/block", adminHandler.BlockDevice)
				r.Put("/admin/devices/{deviceRecordID}/unblock", adminHandler.UnblockDevice)
				r.Delete("/admin/devices/{deviceRecordID}", adminHandler.DeleteDevice)
				r.Put("/admin/accounts/{accountID}/approve", adminHandler.SetAccountApproval)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
