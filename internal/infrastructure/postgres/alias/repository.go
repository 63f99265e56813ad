package alias

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Repository persists merchant aliases used by the payment API.
type Repository struct {
	client postgresql.PostgreSQLClient
}

// NewRepository creates a new alias repository.
func NewRepository(client postgresql.PostgreSQLClient) *Repository {
	return &Repository{
		client: client,
	}
}

// Set registers or replaces the alias of a participant.
func (r *Repository) Set(ctx context.Context, deviceAddress, alias string) error {
	query := `INSERT INTO aliases (device_address, alias)
		VALUES ($1, $2)
		ON CONFLICT (device_address) DO UPDATE SET alias = EXCLUDED.alias`

	if _, err := r.client.Exec(ctx, query, deviceAddress, alias); err != nil {
		return fmt.Errorf("failed to set alias: %w", err)
	}
	return nil
}

// Remove drops the participant's alias if one is registered.
func (r *Repository) Remove(ctx context.Context, deviceAddress string) error {
	if _, err := r.client.Exec(ctx, `DELETE FROM aliases WHERE device_address = $1`, deviceAddress); err != nil {
		return fmt.Errorf("failed to remove alias: %w", err)
	}
	return nil
}

// GetByDevice returns the participant's alias, or "" when none is set.
func (r *Repository) GetByDevice(ctx context.Context, deviceAddress string) (string, error) {
	var alias string
	err := r.client.QueryRow(ctx, `SELECT alias FROM aliases WHERE device_address = $1`, deviceAddress).Scan(&alias)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query alias: %w", err)
	}
	return alias, nil
}

// ResolveDevice returns the device address registered under an alias, or ""
// when the alias is unknown.
func (r *Repository) ResolveDevice(ctx context.Context, alias string) (string, error) {
	var deviceAddress string
	err := r.client.QueryRow(ctx, `SELECT device_address FROM aliases WHERE alias = $1`, alias).Scan(&deviceAddress)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve alias: %w", err)
	}
	return deviceAddress, nil
}
