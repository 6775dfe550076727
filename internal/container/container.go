package container

import (
	"context"
	"fmt"
	"log"

	"abtrust/adapters/db/postgres/migrations"
	"abtrust/adapters/postgres"
	"abtrust/adapters/rng"
	"abtrust/adapters/stats/power"
	"abtrust/app"
	"abtrust/internal/api"
	"abtrust/internal/audit"
	"abtrust/internal/config"
	"abtrust/internal/metrics"
	"abtrust/internal/planning"
	"abtrust/internal/profiling"
	"abtrust/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB      *sqlx.DB // nil when persistence is disabled
	Metrics *metrics.Recorder

	// Repositories (data access layer)
	AuditRunRepo ports.AuditRunRepository

	// Analysis components
	Planner *planning.Planner
	Auditor *audit.Auditor
	Service *app.ExperimentService

	// HTTP
	Handler *api.ExperimentHandler
}

// New creates a new dependency injection container without persistence
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:  cfg,
		Metrics: metrics.NewRecorder([]string{cfg.Experiment.Name}, layerNames(cfg.Experiment)),
		Planner: planning.NewPlanner(power.NewNormalSolver()),
		Auditor: audit.NewAuditor(audit.DefaultThresholds()),
	}
	c.initService()

	return c, nil
}

// InitWithDatabase migrates the schema and switches the service to persisted runs
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if err := migrations.NewMigrator(db.DB).Up(ctx); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	c.DB = db
	c.initRepositories()
	c.initService()

	log.Printf("[Container] Audit runs will be persisted to PostgreSQL")
	return nil
}

func (c *Container) initRepositories() {
	c.AuditRunRepo = postgres.NewAuditRunRepository(c.DB)
}

func (c *Container) initService() {
	c.Service = app.NewExperimentService(c.Planner, c.Auditor, rng.ForSeed, c.AuditRunRepo, c.Metrics)
	c.Handler = api.NewExperimentHandler(c.Service, c.Config.Experiment)
}

// OpsServer builds the health, metrics and pprof server
func (c *Container) OpsServer() *profiling.OpsServer {
	if c.DB != nil {
		return profiling.NewOpsServer(c.Metrics.Handler(), c.DB)
	}
	return profiling.NewOpsServer(c.Metrics.Handler(), nil)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func layerNames(cfg config.ExperimentConfig) []string {
	names := make([]string, len(cfg.Layers))
	for i, l := range cfg.Layers {
		names[i] = l.Name
	}
	return names
}
