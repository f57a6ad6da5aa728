package ws_test

import (
	"testing"
	"time"

	"github.com/davrk/syncpad/internal/ot"
	"github.com/davrk/syncpad/internal/ws"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *ws.Hub, id, docID string) (*ws.Client, *fakeConn) {
	conn := newFakeConn()
	client := ws.NewClient(id, "user-"+id, conn)
	hub.Register(client)
	hub.Subscribe(client, docID)

	return client, conn
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	sender, senderConn := newTestClient(hub, "c1", "d1")
	_, peerConn := newTestClient(hub, "c2", "d1")

	defer func() {
		_ = sender.Close()
	}()

	hub.BroadcastUpdate("d1", 1, ot.Batch{ot.NewInsert(0, "x")}, "u1", sender.ID)

	require.Eventually(t, func() bool {
		return len(peerConn.messages()) == 1
	}, time.Second, 5*time.Millisecond)

	if len(senderConn.messages()) != 0 {
		t.Errorf("sender should not receive its own broadcast, got %d messages", len(senderConn.messages()))
	}
}

func TestHub_BroadcastOnlyToDocument(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	sender, _ := newTestClient(hub, "c1", "d1")
	_, sameDocConn := newTestClient(hub, "c2", "d1")
	_, otherDocConn := newTestClient(hub, "c3", "d2")

	hub.BroadcastUpdate("d1", 1, ot.Batch{ot.NewInsert(0, "x")}, "u1", sender.ID)

	require.Eventually(t, func() bool {
		return len(sameDocConn.messages()) == 1
	}, time.Second, 5*time.Millisecond)

	if len(otherDocConn.messages()) != 0 {
		t.Errorf("client on another document should not receive the broadcast")
	}
}

func TestHub_BroadcastPreservesOrder(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	sender, _ := newTestClient(hub, "c1", "d1")
	_, peerConn := newTestClient(hub, "c2", "d1")

	for i := 1; i <= 20; i++ {
		hub.BroadcastUpdate("d1", i, ot.Batch{ot.NewInsert(0, "x")}, "u1", sender.ID)
	}

	require.Eventually(t, func() bool {
		return len(peerConn.messages()) == 20
	}, time.Second, 5*time.Millisecond)

	for i, msg := range peerConn.messages() {
		payload, ok := msg.Payload.(ws.BroadcastPayload)
		require.True(t, ok)

		if payload.Revision != i+1 {
			t.Fatalf("message %d out of order: revision %d", i, payload.Revision)
		}
	}
}

func TestHub_SlowClientDoesNotBlockPeers(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	sender, _ := newTestClient(hub, "c1", "d1")

	// A client whose connection never completes a write.
	stuckConn := newFakeConn()
	stuckConn.blockWrites = make(chan struct{})
	stuck := ws.NewClient("c2", "u2", stuckConn)
	hub.Register(stuck)
	hub.Subscribe(stuck, "d1")

	defer close(stuckConn.blockWrites)

	_, healthyConn := newTestClient(hub, "c3", "d1")

	// Far more messages than the stuck client's queue can hold.
	for i := 1; i <= 500; i++ {
		hub.BroadcastUpdate("d1", i, ot.Batch{ot.NewInsert(0, "x")}, "u1", sender.ID)
	}

	// The healthy peer still receives everything, in order.
	require.Eventually(t, func() bool {
		return len(healthyConn.messages()) == 500
	}, 2*time.Second, 5*time.Millisecond)

	// The stuck client was cut loose once its queue overflowed.
	if !stuck.Closed() {
		t.Error("stuck client should have been closed")
	}
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	sender, _ := newTestClient(hub, "c1", "d1")
	peer, peerConn := newTestClient(hub, "c2", "d1")

	hub.Unregister(peer)

	hub.BroadcastUpdate("d1", 1, ot.Batch{ot.NewInsert(0, "x")}, "u1", sender.ID)

	time.Sleep(50 * time.Millisecond)

	if len(peerConn.messages()) != 0 {
		t.Errorf("unregistered client should not receive broadcasts")
	}

	if hub.ClientCount("d1") != 1 {
		t.Errorf("expected 1 remaining client, got %d", hub.ClientCount("d1"))
	}
}

func TestHub_SubscribeMovesDocuments(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	client, _ := newTestClient(hub, "c1", "d1")
	hub.Subscribe(client, "d2")

	if hub.ClientCount("d1") != 0 {
		t.Errorf("client should have left d1")
	}

	if hub.ClientCount("d2") != 1 {
		t.Errorf("client should be on d2")
	}

	if client.DocID() != "d2" {
		t.Errorf("expected docID d2, got %q", client.DocID())
	}
}

func TestHub_PresenceBroadcasts(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	joiner, _ := newTestClient(hub, "c1", "d1")
	_, peerConn := newTestClient(hub, "c2", "d1")

	hub.BroadcastPresence("d1", joiner.ID, joiner.UserID)
	hub.BroadcastCursor("d1", joiner.ID, joiner.UserID, 4)
	hub.BroadcastPresenceRemove("d1", joiner.ID)

	require.Eventually(t, func() bool {
		return len(peerConn.messages()) == 3
	}, time.Second, 5*time.Millisecond)

	msgs := peerConn.messages()

	if msgs[0].Type != ws.MessageTypePresence ||
		msgs[1].Type != ws.MessageTypeCursorUpdate ||
		msgs[2].Type != ws.MessageTypePresenceRemove {
		t.Errorf("unexpected message sequence: %v %v %v", msgs[0].Type, msgs[1].Type, msgs[2].Type)
	}
}
