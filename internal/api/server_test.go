package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/davrk/syncpad/internal/ot"
	"github.com/davrk/syncpad/internal/ws"
)

// envelope mirrors the wire message with a raw payload for test decoding.
type envelope struct {
	Type    ws.MessageType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, baseURL, docID, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?docId=" + docID

	header := http.Header{}
	header.Set("X-User-Id", userID)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// readMessage reads the next message with a bounded deadline.
func readMessage(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg envelope
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want ws.MessageType) envelope {
	t.Helper()

	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type == want {
			return msg
		}
	}

	t.Fatalf("never received a %q message", want)

	return envelope{}
}

func TestGetDocument_Snapshot(t *testing.T) {
	t.Parallel()

	server, manager, _ := newTestServer(t)

	session, err := manager.Session(context.Background(), "d1")
	require.NoError(t, err)

	_, err = session.Update("p1", "alice", ot.Batch{ot.NewInsert(0, "hello")}, 0, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/documents/d1", nil)
	req.Header.Set("X-User-Id", "alice")
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ID       string `json:"id"`
		Content  string `json:"content"`
		Revision int    `json:"revision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	if body.Content != "hello" || body.Revision != 1 {
		t.Errorf("unexpected snapshot: %+v", body)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocket_JoinSendsInit(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	conn := dial(t, httpServer.URL, "d1", "alice")

	msg := readMessage(t, conn)
	require.Equal(t, ws.MessageTypeInit, msg.Type)

	var payload ws.InitPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	if payload.DocID != "d1" || payload.Content != "" || payload.Revision != 0 {
		t.Errorf("unexpected init payload: %+v", payload)
	}
}

func TestWebSocket_UpdateAckedAndBroadcast(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	alice := dial(t, httpServer.URL, "d1", "alice")
	readMessage(t, alice) // init

	bob := dial(t, httpServer.URL, "d1", "bob")
	readMessage(t, bob) // init

	require.NoError(t, alice.WriteJSON(ws.Message{
		Type: ws.MessageTypeUpdate,
		Payload: ws.UpdatePayload{
			DocID:        "d1",
			BaseRevision: 0,
			Batch:        ot.Batch{ot.NewInsert(0, "hello")},
		},
	}))

	// Alice gets the ack with the assigned revision.
	ack := readUntil(t, alice, ws.MessageTypeAck)

	var ackPayload ws.AckPayload
	require.NoError(t, json.Unmarshal(ack.Payload, &ackPayload))
	require.Equal(t, 1, ackPayload.Revision)

	// Bob gets the reconciled batch, not alice.
	broadcast := readUntil(t, bob, ws.MessageTypeBroadcast)

	var bcPayload ws.BroadcastPayload
	require.NoError(t, json.Unmarshal(broadcast.Payload, &bcPayload))

	if bcPayload.Revision != 1 || bcPayload.UserID != "alice" {
		t.Errorf("unexpected broadcast: %+v", bcPayload)
	}

	if len(bcPayload.Batch) != 1 || bcPayload.Batch[0].Text != "hello" {
		t.Errorf("unexpected batch: %+v", bcPayload.Batch)
	}
}

func TestWebSocket_StaleFutureRevisionError(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	alice := dial(t, httpServer.URL, "d1", "alice")
	readMessage(t, alice) // init

	require.NoError(t, alice.WriteJSON(ws.Message{
		Type: ws.MessageTypeUpdate,
		Payload: ws.UpdatePayload{
			DocID:        "d1",
			BaseRevision: 7,
			Batch:        ot.Batch{ot.NewInsert(0, "x")},
		},
	}))

	msg := readUntil(t, alice, ws.MessageTypeError)

	var payload ws.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	if payload.Code != ws.ErrorCodeStaleFutureRevision {
		t.Errorf("expected %s, got %s", ws.ErrorCodeStaleFutureRevision, payload.Code)
	}
}

func TestWebSocket_CursorFanout(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	alice := dial(t, httpServer.URL, "d1", "alice")
	readMessage(t, alice) // init

	bob := dial(t, httpServer.URL, "d1", "bob")
	readMessage(t, bob) // init

	require.NoError(t, bob.WriteJSON(ws.Message{
		Type:    ws.MessageTypeCursor,
		Payload: ws.CursorPayload{DocID: "d1", Position: 3},
	}))

	msg := readUntil(t, alice, ws.MessageTypeCursorUpdate)

	var payload ws.CursorUpdatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	if payload.UserID != "bob" || payload.Position != 3 {
		t.Errorf("unexpected cursor update: %+v", payload)
	}
}

func TestWebSocket_DisconnectBroadcastsPresenceRemove(t *testing.T) {
	t.Parallel()

	server, manager, _ := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	alice := dial(t, httpServer.URL, "d1", "alice")
	readMessage(t, alice) // init

	bob := dial(t, httpServer.URL, "d1", "bob")
	readMessage(t, bob) // init

	// Alice sees bob join, then bob disconnects.
	joined := readUntil(t, alice, ws.MessageTypePresence)

	var joinPayload ws.PresencePayload
	require.NoError(t, json.Unmarshal(joined.Payload, &joinPayload))
	require.Equal(t, "bob", joinPayload.UserID)

	require.NoError(t, bob.Close())

	removed := readUntil(t, alice, ws.MessageTypePresenceRemove)

	var removePayload ws.PresenceRemovePayload
	require.NoError(t, json.Unmarshal(removed.Payload, &removePayload))
	require.Equal(t, joinPayload.ParticipantID, removePayload.ParticipantID)

	// The implicit leave shrank the presence map.
	require.Eventually(t, func() bool {
		return manager.Peek("d1") != nil && manager.Peek("d1").Participants() == 1
	}, time.Second, 5*time.Millisecond)
}
