package publish_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-medic/health"
	"github.com/capatazlib/go-medic/publish"
)

func newHub(t *testing.T) (*publish.Hub, string) {
	t.Helper()
	logger := logrus.New()
	logger.Out = io.Discard
	hub := publish.NewHub(logger)
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) health.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var snap health.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	return snap
}

func snapshot(overall health.Overall) health.Snapshot {
	return health.Snapshot{
		ServerID:  "srv-1",
		CheckedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Overall:   overall,
		Services: []health.ServiceReport{
			{
				Name:        "auth",
				Observation: health.Observation{State: health.Stopped},
				Phase:       health.Eligible,
				Critical:    true,
			},
		},
	}
}

func TestLateClientsReceiveLastSnapshot(t *testing.T) {
	hub, url := newHub(t)
	require.NoError(t, hub.Publish(context.Background(), snapshot(health.OverallCritical)))

	conn := dial(t, url)
	snap := readSnapshot(t, conn)
	assert.Equal(t, health.OverallCritical, snap.Overall)
	require.Len(t, snap.Services, 1)
	assert.Equal(t, "auth", snap.Services[0].Name)
	assert.Equal(t, health.Stopped, snap.Services[0].State)
	assert.Equal(t, health.Eligible, snap.Services[0].Phase)
}

func TestBroadcastsToEveryClient(t *testing.T) {
	hub, url := newHub(t)
	conn1 := dial(t, url)
	conn2 := dial(t, url)

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), snapshot(health.OverallWarn)))

	assert.Equal(t, health.OverallWarn, readSnapshot(t, conn1).Overall)
	assert.Equal(t, health.OverallWarn, readSnapshot(t, conn2).Overall)
}

func TestForgetsDisconnectedClients(t *testing.T) {
	hub, url := newHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	// publishing without clients is fine
	assert.NoError(t, hub.Publish(context.Background(), snapshot(health.OverallOK)))
}

func TestRejectsCrossOriginClients(t *testing.T) {
	_, url := newHub(t)
	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSnapshotJSON(t *testing.T) {
	data, err := json.Marshal(snapshot(health.OverallCritical))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"overall":"critical"`)
	assert.Contains(t, string(data), `"state":"stopped"`)
	assert.Contains(t, string(data), `"phase":"eligible"`)
}
