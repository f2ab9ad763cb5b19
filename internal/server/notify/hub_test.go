package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/dmitrijs2005/fieldlog/internal/server/metrics"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, ping time.Duration) (*Hub, *metrics.Metrics, string) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(logging.Nop(), m, ping)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("student"))
	}))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, student string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url+"?student="+student, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readEvent(t *testing.T, c *websocket.Conn) api.Event {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var ev api.Event
	require.NoError(t, api.Unmarshal(data, &ev))
	return ev
}

func TestHub_ConnectedThenPublished(t *testing.T) {
	h, m, url := newTestHub(t, time.Minute)

	c := dial(t, url, "s-1")
	other := dial(t, url, "s-2")

	ev := readEvent(t, c)
	require.Equal(t, api.EventConnected, ev.Type)
	var hello api.ConnectedData
	require.NoError(t, api.Unmarshal(ev.Data, &hello))
	assert.Equal(t, "s-1", hello.StudentID)
	readEvent(t, other)

	assert.Eventually(t, func() bool { return h.Connections("s-1") == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamConnections))

	synced, err := api.NewEvent(api.EventEntrySynced, api.EntrySyncedData{ClientUUID: "c-1", Classification: "verified"})
	require.NoError(t, err)
	h.Publish("s-1", synced)

	got := readEvent(t, c)
	assert.Equal(t, api.EventEntrySynced, got.Type)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "other students receive nothing")
}

func TestHub_PingsAndUnregistersOnClose(t *testing.T) {
	h, m, url := newTestHub(t, 50*time.Millisecond)

	c := dial(t, url, "s-1")
	readEvent(t, c)

	ping := readEvent(t, c)
	assert.Equal(t, api.EventPing, ping.Type)

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return h.Connections("s-1") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StreamConnections))
}

func TestHub_CloseEndsStreams(t *testing.T) {
	h, _, url := newTestHub(t, time.Minute)

	c := dial(t, url, "s-1")
	readEvent(t, c)
	require.Eventually(t, func() bool { return h.Connections("s-1") == 1 }, time.Second, 10*time.Millisecond)

	h.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, h.Connections("s-1"))
}

func TestHub_PublishWithoutStreams(t *testing.T) {
	h := NewHub(logging.Nop(), nil, 0)
	ev, _ := api.NewEvent(api.EventEntrySynced, nil)
	assert.NotPanics(t, func() { h.Publish("nobody", ev) })
}
