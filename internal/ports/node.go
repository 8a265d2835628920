package ports

import (
	"context"

	"chainsnap/internal/types"
)

// NodeRPCPort queries the running node.
type NodeRPCPort interface {
	TipBlockNumber(ctx context.Context) (int64, error)
	NodeVersion(ctx context.Context) (string, error)
}

// ServicePort starts and stops the supervised node service.
type ServicePort interface {
	Stop(ctx context.Context, service string) error
	Start(ctx context.Context, service string) error
	IsActive(ctx context.Context, service string) (bool, error)
}

// HandleInspectorPort reports processes holding files below a directory.
type HandleInspectorPort interface {
	OpenHandles(ctx context.Context, dir string) ([]types.OpenHandle, error)
}
