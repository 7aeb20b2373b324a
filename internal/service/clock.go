package service

import (
	"context"
	"time"
)

// Clock supplies the current time. Services never call time.Now directly.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Notifier delivers a code to its destinations. Implementations must not
// block the caller on delivery; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, code string, destinations []string)
}
