package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"simbridge.dev/internal/protocol"
)

// fakeRuntime upgrades one connection, checks the HELLO, answers WELCOME, and
// then pushes whatever ops the test queued.
func fakeRuntime(t *testing.T, welcomeVersion string, push [][]byte) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hello protocol.HelloMsg
		if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != protocol.TypeHello {
			t.Errorf("bad hello: %s", msg)
			return
		}
		if hello.WorkerType != "UnrealWorker" || hello.WorkerID == "" {
			t.Errorf("hello fields: %+v", hello)
			return
		}

		welcome, _ := json.Marshal(protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: welcomeVersion,
			WorkerID:        "W-assigned",
		})
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}
		for _, b := range push {
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialHandshakeAdoptsAssignedWorkerID(t *testing.T) {
	srv := fakeRuntime(t, protocol.Version, nil)
	defer srv.Close()

	inbox := make(chan protocol.AnyOp, 4)
	c, err := Dial(context.Background(), wsURL(srv), "UnrealWorker", inbox, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.conn.Close()

	if c.WorkerID() != "W-assigned" {
		t.Fatalf("worker id: %q", c.WorkerID())
	}
}

func TestDialRejectsVersionMismatch(t *testing.T) {
	srv := fakeRuntime(t, "0.9", nil)
	defer srv.Close()

	inbox := make(chan protocol.AnyOp, 4)
	if _, err := Dial(context.Background(), wsURL(srv), "UnrealWorker", inbox, log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("expected handshake failure on protocol mismatch")
	}
}

func TestRunPumpsOpsIntoInbox(t *testing.T) {
	op, _ := json.Marshal(protocol.EntityAddedMsg{
		Type:            protocol.OpEntityAdded,
		ProtocolVersion: protocol.Version,
		EntityID:        42,
		Class:           "character",
	})
	srv := fakeRuntime(t, protocol.Version, [][]byte{
		[]byte(`this is not json`), // must be dropped, not fatal
		op,
	})
	defer srv.Close()

	inbox := make(chan protocol.AnyOp, 4)
	c, err := Dial(context.Background(), wsURL(srv), "UnrealWorker", inbox, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case got := <-inbox:
		if got.Type != protocol.OpEntityAdded || got.EntityAdded == nil || got.EntityAdded.EntityID != 42 {
			t.Fatalf("op: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no op arrived")
	}
}
