package cursor

import (
	"context"
	"fmt"

	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Repository persists the bitcoin rescan cursor. The table holds exactly
// one row, seeded empty by the initial migration; an empty cursor makes
// listsinceblock scan from the beginning of the wallet's history.
type Repository struct {
	client postgresql.PostgreSQLClient
}

// NewRepository creates a new rescan cursor repository.
func NewRepository(client postgresql.PostgreSQLClient) *Repository {
	return &Repository{
		client: client,
	}
}

// LastBlock returns the block hash the previous rescan stopped at.
func (r *Repository) LastBlock(ctx context.Context) (string, error) {
	var hash string
	if err := r.client.QueryRow(ctx, `SELECT last_block FROM last_blocks`).Scan(&hash); err != nil {
		return "", fmt.Errorf("failed to query last block: %w", err)
	}
	return hash, nil
}

// SetLastBlock advances the rescan cursor.
func (r *Repository) SetLastBlock(ctx context.Context, hash string) error {
	if _, err := r.client.Exec(ctx, `UPDATE last_blocks SET last_block = $1`, hash); err != nil {
		return fmt.Errorf("failed to update last block: %w", err)
	}
	return nil
}
