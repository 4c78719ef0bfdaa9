package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shrinkhala/shrinkhala/internal/config"
	"github.com/shrinkhala/shrinkhala/internal/domain/identity"
	"github.com/shrinkhala/shrinkhala/internal/domain/onboarding"
	"github.com/shrinkhala/shrinkhala/internal/domain/reports"
	"github.com/shrinkhala/shrinkhala/internal/domain/sharing"
	"github.com/shrinkhala/shrinkhala/internal/platform/auth"
	"github.com/shrinkhala/shrinkhala/internal/platform/blobstore"
	"github.com/shrinkhala/shrinkhala/internal/platform/db"
	"github.com/shrinkhala/shrinkhala/internal/platform/middleware"
	"github.com/shrinkhala/shrinkhala/internal/platform/notification"
)

// Request body bounds. The upload bound covers a full batch of files at the
// blobstore per-file cap, with headroom for multipart framing.
const (
	defaultBodyLimit = "1M"
	uploadBodyLimit  = "105M"
)

// patientDirAdapter exposes the identity service to the reports and sharing
// domains without importing them into identity.
type patientDirAdapter struct {
	svc *identity.Service
}

func (a *patientDirAdapter) Contact(ctx context.Context, uid string) (*reports.PatientContact, error) {
	p, err := a.svc.GetPatient(ctx, uid)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, reports.ErrUnknownPatient
		}
		return nil, err
	}
	return &reports.PatientContact{
		UID:         p.UID,
		FullName:    p.FullName(),
		PhoneNumber: p.PhoneNumber,
	}, nil
}

func (a *patientDirAdapter) Lookup(ctx context.Context, uid string) (*sharing.PatientInfo, error) {
	p, err := a.svc.GetPatient(ctx, uid)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, sharing.ErrNotFound
		}
		return nil, err
	}
	return &sharing.PatientInfo{
		UID:         p.UID,
		FullName:    p.FullName(),
		PhoneNumber: p.PhoneNumber,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "shrinkhala-server",
		Short: "Shrinkhala patient records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// File storage
	blobs, err := blobstore.NewDiskBlobStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to open upload directory")
	}

	// Notifications. Console senders log the message; swap in a gateway
	// sender for production SMS delivery.
	templates := notification.NewTemplateEngine()
	notifier := notification.NewNotificationManager(
		&notification.ConsoleEmailSender{Logger: logger},
		&notification.ConsoleSMSSender{Logger: logger},
		templates,
	)

	// Token issuing and revocation
	issuer := auth.NewIssuer([]byte(cfg.TokenSigningKey), "shrinkhala", "shrinkhala-app",
		time.Duration(cfg.TokenTTLHours)*time.Hour)
	revoked := auth.NewTokenRevocationStore()
	defer revoked.Close()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit(defaultBodyLimit, uploadBodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.TokenMiddleware(issuer, revoked))
	}

	e.Use(middleware.Sanitize())
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// -- Register Domain Handlers --

	// Onboarding: phone verification and registration drafts
	codeRepo := onboarding.NewCodeRepo(pool)
	draftRepo := onboarding.NewDraftRepo(pool)
	devCode := ""
	if cfg.IsDev() {
		devCode = cfg.OTPDevCode
	}
	onboardingSvc := onboarding.NewService(codeRepo, draftRepo, notifier, logger,
		time.Duration(cfg.OTPTTLMinutes)*time.Minute, devCode)
	onboarding.NewHandler(onboardingSvc).RegisterRoutes(apiV1)

	// Identity: patients, credentials, login
	patientRepo := identity.NewPatientRepo(pool)
	credRepo := identity.NewCredentialRepo(pool)
	identitySvc := identity.NewService(patientRepo, credRepo, onboardingSvc,
		&db.PoolTxRunner{Pool: pool}, issuer, revoked, notifier, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	patientDir := &patientDirAdapter{svc: identitySvc}

	// Reports: upload, extraction results, dashboard listing
	reportRepo := reports.NewReportRepo(pool)
	reportsSvc := reports.NewService(reportRepo, blobs, patientDir, notifier, logger, cfg.MaxUploadFiles)
	reports.NewHandler(reportsSvc).RegisterRoutes(apiV1)

	// Sharing: share codes and doctor links
	shareCodeRepo := sharing.NewShareCodeRepo(pool)
	doctorLinkRepo := sharing.NewDoctorLinkRepo(pool)
	sharingSvc := sharing.NewService(shareCodeRepo, doctorLinkRepo, patientDir, notifier, logger,
		time.Duration(cfg.OTPTTLMinutes)*time.Minute)
	sharing.NewHandler(sharingSvc).RegisterRoutes(apiV1)

	// Notification inspection endpoints
	notification.NewNotificationHandler(notifier).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
