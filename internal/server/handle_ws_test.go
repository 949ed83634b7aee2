package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/salvador2999/missions/internal/game"
)

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	s := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/game/ws"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + s}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for env.broker.Subscribers(s) == 0 {
		if ctx.Err() != nil {
			t.Fatal("socket never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.ok(t, http.MethodPost, "/api/game/reset", s, nil)

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}
	var ev game.Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type != game.EventProgressReset {
		t.Errorf("event = %s (%v)", data, err)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
