package alias

import "context"

// AliasRepository defines the persistence operations for merchant aliases.
type AliasRepository interface {
	Set(ctx context.Context, deviceAddress, alias string) error
	Remove(ctx context.Context, deviceAddress string) error
	GetByDevice(ctx context.Context, deviceAddress string) (string, error)
	ResolveDevice(ctx context.Context, alias string) (string, error)
}
