// Package postgres provides the PostgreSQL persistence implementation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/flowzap/flowzap/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	flowRepo     *FlowRepository
	instanceRepo *InstanceRepository
	windowRepo   *WindowRepository
	healthRepo   *HealthRepository
	timerRepo    *TimerRepository
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		flowRepo:     &FlowRepository{db: database},
		instanceRepo: &InstanceRepository{db: database},
		windowRepo:   &WindowRepository{db: database},
		healthRepo:   &HealthRepository{db: database},
		timerRepo:    &TimerRepository{db: database},
	}, nil
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) WindowRepository() persistence.WindowRepository {
	return p.windowRepo
}

func (p *Persistence) HealthRepository() persistence.HealthRepository {
	return p.healthRepo
}

func (p *Persistence) TimerRepository() persistence.TimerRepository {
	return p.timerRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS flows (
				id TEXT NOT NULL,
				version INTEGER NOT NULL,
				status TEXT NOT NULL,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (id, version)
			);

			CREATE INDEX IF NOT EXISTS idx_flows_status ON flows (status);

			CREATE TABLE IF NOT EXISTS instances (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				status TEXT NOT NULL,
				archived BOOLEAN NOT NULL DEFAULT FALSE,
				state JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_instances_contact ON instances (contact_id, status);
			CREATE INDEX IF NOT EXISTS idx_instances_status ON instances (status);

			CREATE TABLE IF NOT EXISTS conversation_windows (
				contact_id TEXT PRIMARY KEY,
				last_inbound_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS template_health (
				template_id TEXT PRIMARY KEY,
				status TEXT NOT NULL,
				quality TEXT NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS timers (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				fire_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_timers_fire_at ON timers (fire_at);
			CREATE INDEX IF NOT EXISTS idx_timers_instance ON timers (instance_id);
		`,
	}
}
