// Package metadata stores small client-side settings (access token, last
// successful sync time) as key/value pairs next to the log entries.
package metadata

import (
	"context"
	"time"
)

// Well-known keys.
const (
	KeyAccessToken = "access_token"
	KeyLastSyncAt  = "last_sync_at"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)

	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}
