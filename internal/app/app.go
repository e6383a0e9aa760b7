package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/andy/billgrid/internal/config"
	"github.com/andy/billgrid/internal/crypto"
	"github.com/andy/billgrid/internal/db"
	"github.com/andy/billgrid/internal/grid"
	"github.com/andy/billgrid/internal/repository"
	"github.com/andy/billgrid/internal/service"
)

// App is the dependency injection container for all application components
type App struct {
	Config *config.Config
	DB     *db.DB
	Logger *zap.Logger

	level    zap.AtomicLevel
	Registry *prometheus.Registry
	Metrics  *service.Metrics

	// Repositories
	BillRepo repository.BillRepository
	LineRepo repository.LineItemRepository
	CodeRepo repository.CodeRepository

	// Services
	BillService service.BillService
	CodeService service.CodeService
	Validator   *service.RulesValidator
	Gateway     grid.Gateway
	History     *service.LineItemGateway
}

// New creates a new App instance, initializing all dependencies
// It handles:
// 1. Loading config
// 2. Building the logger
// 3. Getting encryption key from keyring
// 4. Opening database and running migrations
// 5. Creating repositories, services and metrics
func New(ctx context.Context) (*App, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates an App with a provided config (useful for testing)
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	logger, level, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	keyring := crypto.NewKeyring(cfg.Database.Path)

	password, err := keyring.GetKey()
	if err != nil {
		fmt.Println("Setting up database encryption for the first time...")
		password, err = promptForPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to set password: %w", err)
		}

		if err := keyring.SetKey(password); err != nil {
			return nil, fmt.Errorf("failed to store encryption key: %w", err)
		}
	}

	database, err := db.Open(cfg.Database.Path, password)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	billRepo := repository.NewBillRepo(database)
	lineRepo := repository.NewLineItemRepo(database)
	codeRepo := repository.NewCodeRepo(database)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(registry)

	validator := service.NewRulesValidator(billRepo, lineRepo, service.RuleConfig{
		HighValueThreshold:  cfg.Rules.HighValueThreshold,
		LargeTotalThreshold: cfg.Rules.LargeTotalThreshold,
	}, logger)
	lineGateway := service.NewLineItemGateway(lineRepo, logger)

	logger.Debug("app initialized", zap.String("database", database.Path()))

	return &App{
		Config:      cfg,
		DB:          database,
		Logger:      logger,
		level:       level,
		Registry:    registry,
		Metrics:     metrics,
		BillRepo:    billRepo,
		LineRepo:    lineRepo,
		CodeRepo:    codeRepo,
		BillService: service.NewBillService(billRepo, validator, logger),
		CodeService: service.NewCodeService(codeRepo, logger),
		Validator:   validator,
		Gateway:     service.Instrument(lineGateway, metrics),
		History:     lineGateway,
	}, nil
}

// NewLogger builds a zap logger from the log config. Output goes to the log
// file when one is configured so it never interleaves with the TUI.
func NewLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, level, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level.SetLevel(l)
	}
	zcfg.Level = level

	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

// SetLogLevel changes the level of the running logger
func (a *App) SetLogLevel(level string) error {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	a.level.SetLevel(l)
	return nil
}

// GridSettings converts the grid config section to controller settings
func (a *App) GridSettings() grid.Settings {
	g := a.Config.Grid
	return grid.Settings{
		CacheSize:         g.DescriptionCacheSize,
		SearchDebounce:    g.SearchDebounce,
		SearchMinChars:    g.SearchMinChars,
		SearchLimit:       g.SearchLimit,
		FollowingMax:      g.FollowingMax,
		DuplicateMax:      g.DuplicateMax,
		DuplicateConfirm:  g.DuplicateConfirm,
		EnrichmentWorkers: g.EnrichmentWorkers,
		Accounts:          g.Accounts,
	}
}

// NewGrid creates a grid controller for a bill wired to the app's services
func (a *App) NewGrid(ctx context.Context, billID string, notifier grid.Notifier) (*grid.Controller, error) {
	return grid.New(ctx, billID, grid.Options{
		Gateway:   a.Gateway,
		Validator: a.Validator,
		Lookup:    a.CodeService,
		Stages:    a.BillService,
		Notifier:  notifier,
		Logger:    a.Logger,
		Settings:  a.GridSettings(),
	})
}

// ServeMetrics starts the /metrics endpoint when metrics.addr is set. The
// returned function shuts the server down.
func (a *App) ServeMetrics() func() {
	addr := a.Config.Metrics.Addr
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.Logger.Info("metrics endpoint listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Close cleanly shuts down the application
func (a *App) Close() error {
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// promptForPassword prompts user for a new database password (first run)
// This should be called when keyring has no stored key
func promptForPassword() (string, error) {
	fmt.Println()
	fmt.Println("Your billing data will be encrypted with a password.")
	fmt.Println("This password will be stored securely in your system keyring.")
	fmt.Println()
	fmt.Print("Enter a password for database encryption: ")

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}

	fmt.Println()
	fmt.Println("✓ Database encryption configured successfully")
	fmt.Println()

	return string(password), nil
}

// SaveConfig saves the current configuration to disk
func (a *App) SaveConfig() error {
	return a.Config.Save(config.DefaultConfigPath())
}
