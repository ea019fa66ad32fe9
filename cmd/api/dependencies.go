package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/classify"
	importhandler "github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/handler"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/narration"
	importrepo "github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/repository"
	importservice "github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/service"
	"github.com/hassang371/spendsmart-dashboard-sub002/pkg/config"
	"github.com/hassang371/spendsmart-dashboard-sub002/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportStore importrepo.Store

	// Services
	Categorizer   *classify.Categorizer
	ImportService *importservice.ImportService

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.ImportStore = importrepo.NewPostgresStore(deps.DB.Pool)

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.ImportHandler = importhandler.NewImportHandler(deps.ImportService, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        d.Config.Database.MaxConns,
		MinConns:        d.Config.Database.MinConns,
		MaxConnLifetime: d.Config.Database.MaxConnLifetime,
		MaxConnIdleTime: d.Config.Database.MaxConnIdleTime,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initServices initializes the parser, classifier and import pipeline
func (d *Dependencies) initServices() error {
	var aliases narration.AliasTable
	if path := d.Config.Importer.AliasTablePath; path != "" {
		loaded, err := narration.LoadAliasTable(path)
		if err != nil {
			return fmt.Errorf("failed to load alias table: %w", err)
		}
		aliases = loaded
		d.Logger.Info("loaded merchant alias table", "path", path, "entries", len(loaded))
	}
	parser := narration.NewParser(aliases)

	if endpoint := d.Config.Classifier.Endpoint; endpoint != "" {
		classifier := classify.NewHTTPClassifier(endpoint, d.Config.Classifier.Timeout)
		d.Categorizer = classify.NewCategorizer(classifier, d.Logger)
		d.Logger.Info("category classifier enabled", "endpoint", endpoint)
	} else {
		d.Logger.Info("category classifier disabled; imported rows stay uncategorized")
	}

	d.ImportService = importservice.NewImportService(d.ImportStore, parser, d.Categorizer, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
