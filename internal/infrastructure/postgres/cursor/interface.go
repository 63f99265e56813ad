package cursor

import "context"

// CursorRepository defines the persistence operations for the rescan cursor.
type CursorRepository interface {
	LastBlock(ctx context.Context) (string, error)
	SetLastBlock(ctx context.Context, hash string) error
}
