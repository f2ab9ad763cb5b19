package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/gorilla/websocket"
)

// StreamListener reads server notifications from the websocket stream.
type StreamListener struct {
	url    string
	token  TokenSource
	dialer *websocket.Dialer
}

// NewStreamListener derives the ws:// or wss:// stream URL from the server's
// base URL.
func NewStreamListener(baseURL string, token TokenSource) (*StreamListener, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	u.Path += api.StreamPath

	if token == nil {
		token = StaticToken("")
	}
	return &StreamListener{
		url:    u.String(),
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Listen connects and calls handle for every event until ctx is done or the
// connection drops. Server pings are answered with pongs and not passed on.
// It returns nil when ctx is cancelled.
func (l *StreamListener) Listen(ctx context.Context, handle func(api.Event)) error {
	header := http.Header{}
	token, err := l.token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if token != "" {
		header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	conn, resp, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	for {
		var ev api.Event
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if err := api.Unmarshal(data, &ev); err != nil {
			continue
		}

		if ev.Type == api.EventPing {
			pong, _ := api.NewEvent(api.EventPong, nil)
			msg, _ := api.Marshal(pong)
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				return fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
			continue
		}
		handle(ev)
	}
}
