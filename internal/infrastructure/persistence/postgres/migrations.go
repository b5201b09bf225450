package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// DB is what the migrator needs from a connection.
type DB interface {
	Querier
	TxBeginner
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	db         DB
	migrations []Migration
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(db DB) *Migrator {
	return &Migrator{db: db, migrations: GetMigrations()}
}

const (
	createMigrationsTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	selectAppliedMigrations = `SELECT version, applied_at FROM schema_migrations ORDER BY version`
	insertMigration         = `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
	deleteMigration         = `DELETE FROM schema_migrations WHERE version = $1`
)

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	if _, err := m.db.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.db.Query(ctx, selectAppliedMigrations)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if mig.UpSQL == "" {
			return count, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := WithTx(ctx, m.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, insertMigration, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return WithTx(ctx, m.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, deleteMigration, last)
		return err
	})
}

// Status lists the embedded migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_profile_read_model", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_assignment_proposals", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

const migration001Up = `
-- Personality snapshots produced by the upstream calculators.
-- Sections are nullable: a missing section means "not measured".
CREATE TABLE IF NOT EXISTS personality_profiles (
    owner_kind VARCHAR(10) NOT NULL,
    owner_id VARCHAR(64) NOT NULL,
    mbti_type CHAR(4),
    mbti JSONB,
    five_elements JSONB,
    name_grids JSONB,
    version BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (owner_kind, owner_id),
    CONSTRAINT valid_owner_kind CHECK (owner_kind IN ('student', 'teacher')),
    CONSTRAINT positive_version CHECK (version > 0)
);

CREATE TABLE IF NOT EXISTS teachers (
    id VARCHAR(64) PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    current_load INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_load CHECK (current_load >= 0)
);

CREATE INDEX IF NOT EXISTS idx_teachers_active ON teachers(id) WHERE active;

CREATE TABLE IF NOT EXISTS team_members (
    team_id VARCHAR(64) NOT NULL,
    student_id VARCHAR(64) NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (team_id, student_id)
);

CREATE INDEX IF NOT EXISTS idx_team_members_order ON team_members(team_id, position);
`

const migration001Down = `
DROP TABLE IF EXISTS team_members;
DROP TABLE IF EXISTS teachers;
DROP TABLE IF EXISTS personality_profiles;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS assignment_proposals (
    id UUID PRIMARY KEY,
    scope JSONB NOT NULL,
    status VARCHAR(10) NOT NULL DEFAULT 'PENDING',
    assignments JSONB NOT NULL DEFAULT '[]'::jsonb,
    summary JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE,
    cancelled_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_proposal_status CHECK (status IN ('PENDING', 'APPLIED', 'CANCELLED'))
);

CREATE INDEX IF NOT EXISTS idx_assignment_proposals_status ON assignment_proposals(status, created_at DESC);

-- One row per reassignment of an applied proposal.
CREATE TABLE IF NOT EXISTS assignment_audit_log (
    id UUID PRIMARY KEY,
    proposal_id UUID NOT NULL REFERENCES assignment_proposals(id) ON DELETE CASCADE,
    student_id VARCHAR(64) NOT NULL,
    teacher_id VARCHAR(64) NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL,

    UNIQUE (proposal_id, student_id)
);

CREATE INDEX IF NOT EXISTS idx_assignment_audit_student ON assignment_audit_log(student_id, applied_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS assignment_audit_log;
DROP TABLE IF EXISTS assignment_proposals;
`
