package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/caseworks/auth-api/internal/auth"
	"github.com/caseworks/auth-api/internal/avatar"
	"github.com/caseworks/auth-api/internal/config"
	"github.com/caseworks/auth-api/internal/database"
	"github.com/caseworks/auth-api/internal/email"
	httpServer "github.com/caseworks/auth-api/internal/http"
	"github.com/caseworks/auth-api/internal/logging"
	"github.com/caseworks/auth-api/internal/user"
)

// @title           Caseworks Auth API
// @version         1.0
// @description     Authentication service for the Caseworks platform: signup, login, bearer tokens and password recovery.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration; a missing token key aborts startup here.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	userRepo := user.NewBunRepository(db)

	tokenService, err := auth.NewTokenService(cfg.Auth.TokenKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	hasher := auth.NewPasswordHasher(int64(cfg.Auth.HashMaxConcurrency))
	resetTokens := auth.NewResetTokenGenerator(cfg.Auth.ResetTokenDuration)

	notifier := email.NewService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FrontendURL,
	)

	avatarStore, err := avatar.NewS3Store(context.Background(), cfg.Avatar)
	if err != nil {
		return fmt.Errorf("failed to initialize avatar store: %w", err)
	}

	authService := auth.NewService(
		userRepo,
		notifier,
		avatarStore,
		hasher,
		tokenService,
		resetTokens,
		logger,
		cfg.Auth.TokenDuration,
		cfg.Auth.PasswordMinLength,
		cfg.Auth.NotifierTimeout,
	)

	authHandler := auth.NewHandler(authService)
	authMiddleware := auth.NewMiddleware(tokenService)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger)

	serverAddr := ":" + cfg.Server.Port
	server := httpServer.NewServer(
		serverAddr,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initDB initializes the database connection and returns a Bun DB instance
func initDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return database.NewBunDB(sqlDB), nil
}
