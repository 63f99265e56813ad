// Package migration applies SQL schema migrations from a directory of
// .up.sql / .down.sql file pairs, tracking applied ids in a table.
package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Migration represents a database migration.
type Migration struct {
	ID      string
	Name    string
	UpSQL   string
	DownSQL string
}

// Runner handles migration execution.
type Runner struct {
	client       postgresql.PostgreSQLClient
	migrationDir string
	tableName    string
}

// Config for the migration runner.
type Config struct {
	MigrationDir string
	TableName    string // default: "schema_migrations"
}

// NewRunner creates a new migration runner.
func NewRunner(client postgresql.PostgreSQLClient, config Config) *Runner {
	if config.TableName == "" {
		config.TableName = "schema_migrations"
	}
	return &Runner{
		client:       client,
		migrationDir: config.MigrationDir,
		tableName:    config.TableName,
	}
}

// Up applies all pending migrations in lexical order.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	applied, err := r.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrations, err := r.loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		err := postgresql.WithTx(ctx, r.client, func(ctx context.Context) error {
			if _, err := r.client.Exec(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := r.client.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (id, name) VALUES ($1, $2)", r.tableName),
				m.ID, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.ID, err)
		}
	}

	return nil
}

func (r *Runner) ensureMigrationTable(ctx context.Context) error {
	_, err := r.client.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`, r.tableName))
	return err
}

func (r *Runner) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := r.client.Query(ctx,
		fmt.Sprintf("SELECT id FROM %s ORDER BY applied_at", r.tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}

	return applied, rows.Err()
}

func (r *Runner) loadMigrations() ([]Migration, error) {
	upFiles, err := filepath.Glob(filepath.Join(r.migrationDir, "*.up.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(upFiles)

	var migrations []Migration
	for _, upFile := range upFiles {
		base := strings.TrimSuffix(filepath.Base(upFile), ".up.sql")
		parts := strings.SplitN(base, "_", 2)
		name := base
		if len(parts) == 2 {
			name = parts[1]
		}

		upContent, err := os.ReadFile(upFile)
		if err != nil {
			return nil, err
		}

		m := Migration{
			ID:    base,
			Name:  name,
			UpSQL: string(upContent),
		}

		downFile := strings.TrimSuffix(upFile, ".up.sql") + ".down.sql"
		if downContent, err := os.ReadFile(downFile); err == nil {
			m.DownSQL = string(downContent)
		}

		migrations = append(migrations, m)
	}

	return migrations, nil
}
