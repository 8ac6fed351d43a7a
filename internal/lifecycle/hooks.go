package lifecycle

import (
	"context"
	"time"
)

// Hook describes a named shutdown hook. A zero Timeout uses the coordinator's default.
type Hook struct {
	Name    string
	Fn      func(ctx context.Context) error
	Timeout time.Duration
}
