package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"time"

	"planmarket/internal/domain/event"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type Clock interface {
	Now() time.Time
}

// UTCClock is the production clock.
type UTCClock struct{}

func (UTCClock) Now() time.Time { return time.Now().UTC() }

type IDGenerator interface {
	NewID() string
	NewOrderNumber() string
	NewSecret() (string, error)
}

// RandomIDs issues uuid v4 ids, ULID order numbers and 32-byte URL-safe secrets.
type RandomIDs struct{}

func (RandomIDs) NewID() string { return uuid.NewString() }

func (RandomIDs) NewOrderNumber() string {
	return "ORD-" + strings.ToUpper(ulid.Make().String())
}

func (RandomIDs) NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Notifier is fire-and-forget. Callers log errors and carry on.
type Notifier interface {
	Notify(ctx context.Context, n event.Notification) error
}

type FileStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
}

// ProcessedEventCache is the fast dedup layer in front of the webhook_events table.
type ProcessedEventCache interface {
	// MarkIfNew records key and reports whether it was unseen.
	MarkIfNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}
