package services

//go:generate mockgen -destination=mock_services.go -package=services github.com/obsforge/stackupgrade/pkg/services Manager

import "context"

// Manager controls systemd units on the local host.
type Manager interface {
	IsActive(ctx context.Context, unit string) (bool, string, error)
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
	UnitFilePath(ctx context.Context, unit string) (string, error)
}
