package opsfeed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/hotswap"
)

type frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialFeed(t *testing.T, f *Feed) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var fr frame
	require.NoError(t, conn.ReadJSON(&fr))
	return fr
}

func TestFeed_SnapshotThenEvents(t *testing.T) {
	lineage := hotswap.Lineage{Type: "Ship", Nodes: []hotswap.LineageNode{{ID: "ship_base", Label: "ship_base"}}}
	f := New(WithLineages(func() []hotswap.Lineage { return []hotswap.Lineage{lineage} }))
	f.Publish(hotswap.Event{Kind: hotswap.EventReloaded, Unit: "Ship", Generation: 1})

	conn := dialFeed(t, f)

	fr := readFrame(t, conn)
	require.Equal(t, MsgSnapshot, fr.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &snap))
	require.Len(t, snap.Events, 1)
	assert.Equal(t, 1, snap.Events[0].Generation)
	assert.Equal(t, []hotswap.Lineage{lineage}, snap.Lineages)

	require.Eventually(t, func() bool { return f.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	f.Publish(hotswap.Event{Kind: hotswap.EventCompileFailed, Unit: "Ship", Error: "syntax error"})

	fr = readFrame(t, conn)
	require.Equal(t, MsgEvent, fr.Type)
	var e hotswap.Event
	require.NoError(t, json.Unmarshal(fr.Payload, &e))
	assert.Equal(t, hotswap.EventCompileFailed, e.Kind)
	assert.Equal(t, "syntax error", e.Error)
}

func TestFeed_Backlog(t *testing.T) {
	f := New(WithBacklog(2))
	for i := 1; i <= 3; i++ {
		f.Publish(hotswap.Event{Kind: hotswap.EventReloaded, Unit: "Ship", Generation: i})
	}
	recent := f.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].Generation)
	assert.Equal(t, 3, recent[1].Generation)
}

func TestFeed_ClientDisconnect(t *testing.T) {
	f := New()
	conn := dialFeed(t, f)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return f.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return f.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestFeed_Close(t *testing.T) {
	f := New()
	conn := dialFeed(t, f)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return f.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	f.Close()
	assert.Equal(t, 0, f.ClientCount())
	assert.NotPanics(t, func() { f.Publish(hotswap.Event{Kind: hotswap.EventReloaded}) })
}
