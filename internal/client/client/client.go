package client

import (
	"context"

	"github.com/dmitrijs2005/fieldlog/internal/api"
)

// Client submits log entries to the ingest server.
type Client interface {
	// Submit sends one entry. A created or already existing entry both
	// return the server's canonical state.
	Submit(ctx context.Context, req api.SyncRequest) (*api.Entry, error)

	// Get fetches the canonical state of an entry by its client id.
	Get(ctx context.Context, clientUUID string) (*api.Entry, error)

	Ping(ctx context.Context) error
	Close() error
}

// Prober is anything that can tell whether the server is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// TokenSource returns the bearer token to send, or "" for none.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}
