package wsfeed_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lumenctl/lumen/internal/notify"
	"github.com/lumenctl/lumen/internal/notify/wsfeed"
)

func TestServerStreamsUpdatesAsJSONFrames(t *testing.T) {
	n := notify.New(nil)
	srv := wsfeed.NewServer(n)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the subscription before the
	// Notifier emits, since Subscribe happens inside the handler goroutine.
	time.Sleep(10 * time.Millisecond)

	n.Emit(notify.Update{Kind: notify.KindCurrentScene, SceneID: 7})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "current_scene", decoded["kind"])
	require.Equal(t, float64(7), decoded["scene_id"])
}

func TestServerStreamsStatusAndNotificationFrames(t *testing.T) {
	n := notify.New(nil)
	srv := wsfeed.NewServer(n)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(10 * time.Millisecond)

	n.Emit(notify.Update{Kind: notify.KindStatusChanged, StatusID: 200, NewState: 51})
	n.Emit(notify.Update{Kind: notify.KindNotification, Level: notify.LevelWarning, Message: "unknown event", HasEvent: true, EventID: 99, Timestamp: time.Unix(0, 0)})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw1, err := conn.ReadMessage()
	require.NoError(t, err)
	var f1 map[string]any
	require.NoError(t, json.Unmarshal(raw1, &f1))
	require.Equal(t, "status_changed", f1["kind"])
	require.Equal(t, float64(200), f1["status_id"])
	require.Equal(t, float64(51), f1["new_state"])

	_, raw2, err := conn.ReadMessage()
	require.NoError(t, err)
	var f2 map[string]any
	require.NoError(t, json.Unmarshal(raw2, &f2))
	require.Equal(t, "notification", f2["kind"])
	require.Equal(t, "warning", f2["level"])
	require.Equal(t, "unknown event", f2["message"])
	require.Equal(t, float64(99), f2["event_id"])
}
