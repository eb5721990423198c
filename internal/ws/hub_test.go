package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func event(seq, marketID uint64) model.Event {
	ev := model.NewMakerEvent(model.MakerEvent{MarketID: marketID, Type: model.MakerPlace, Size: seq, Price: 10})
	ev.Sequence = seq
	return ev
}

func TestRingBuffer(t *testing.T) {
	r := newRingBuffer(3)
	for seq := uint64(1); seq <= 5; seq++ {
		r.add(Message{Topic: "t", Seq: seq})
	}
	got := r.getSince(0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(5), got[2].Seq)
	assert.Len(t, r.getSince(4), 1)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_ReplayAndLiveDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(4, 16, zaptest.NewLogger(t))
	go hub.Run(ctx)

	require.NoError(t, hub.PublishEvents(ctx, []model.Event{event(1, 1), event(2, 2), event(3, 1)}))
	require.Eventually(t, func() bool { return len(hub.Replay(MarketTopic(1), 0)) == 2 }, 5*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.RemoteAddr)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeRequest{Subscribe: []string{MarketTopic(1)}, Since: 1}))
	msg := readMessage(t, conn)
	assert.Equal(t, MarketTopic(1), msg.Topic)
	assert.Equal(t, uint64(3), msg.Seq)

	var ev model.Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	require.NotNil(t, ev.Maker)
	assert.Equal(t, uint64(3), ev.Maker.Size)

	require.NoError(t, hub.PublishEvents(ctx, []model.Event{event(4, 2), event(5, 1)}))
	msg = readMessage(t, conn)
	assert.Equal(t, uint64(5), msg.Seq)
}

func TestHub_PublishAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(1, 1, zaptest.NewLogger(t))
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// The broadcast buffer may absorb a few messages; the rest must not block.
	events := make([]model.Event, 2048)
	for i := range events {
		events[i] = event(uint64(i)+1, 1)
	}
	assert.NoError(t, hub.PublishEvents(context.Background(), events))
}
