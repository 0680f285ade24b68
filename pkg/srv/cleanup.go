package srv

import "context"

// cleanupService wraps a close function so it runs during shutdown.
type cleanupService struct {
	cleanup func() error
}

func (c *cleanupService) Start(ctx context.Context) error {
	return nil
}

func (c *cleanupService) Shutdown(ctx context.Context) error {
	if c.cleanup != nil {
		return c.cleanup()
	}
	return nil
}

func NewCleanup(fn func() error) Service {
	return &cleanupService{cleanup: fn}
}

// NewCleanupFunc adapts a close function without an error result.
func NewCleanupFunc(fn func()) Service {
	return &cleanupService{cleanup: func() error {
		fn()
		return nil
	}}
}
