package ws

import (
	"sync"

	"github.com/davrk/syncpad/internal/ot"
)

// Hub tracks connected clients and fans reconciled batches and presence
// events out to the participants of a document. Messages for one document
// are enqueued in call order onto every recipient's send queue, so
// per-document delivery order matches the order the session coordinator
// processed the events. A slow participant fills only its own queue and is
// disconnected on overflow; its peers are unaffected.
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client
	clients map[string]*Client

	// documents maps document ID to set of client IDs
	documents map[string]map[string]struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		documents: make(map[string]map[string]struct{}),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
}

// Unregister removes a client from the hub and any document subscription.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if docID := client.DocID(); docID != "" {
		h.removeFromDocument(docID, client.ID)
	}

	delete(h.clients, client.ID)
}

// Subscribe adds a client to a document's broadcast list.
func (h *Hub) Subscribe(client *Client, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Unsubscribe from previous document
	if oldDocID := client.DocID(); oldDocID != "" && oldDocID != docID {
		h.removeFromDocument(oldDocID, client.ID)
	}

	if h.documents[docID] == nil {
		h.documents[docID] = make(map[string]struct{})
	}

	h.documents[docID][client.ID] = struct{}{}
	client.SetDocID(docID)
}

// Unsubscribe removes a client from a document's broadcast list.
func (h *Hub) Unsubscribe(client *Client, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromDocument(docID, client.ID)

	if client.DocID() == docID {
		client.SetDocID("")
	}
}

// removeFromDocument must be called with the hub lock held.
func (h *Hub) removeFromDocument(docID, clientID string) {
	clients, ok := h.documents[docID]
	if !ok {
		return
	}

	delete(clients, clientID)

	if len(clients) == 0 {
		delete(h.documents, docID)
	}
}

// Broadcast enqueues a message to every client subscribed to a document,
// except the sender (identified by excludeClientID). A client whose send
// queue overflows is closed so it can reconnect and resynchronize.
func (h *Hub) Broadcast(docID string, msg Message, excludeClientID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clientIDs, ok := h.documents[docID]
	if !ok {
		return
	}

	for clientID := range clientIDs {
		if clientID == excludeClientID {
			continue
		}

		client, ok := h.clients[clientID]
		if !ok {
			continue
		}

		if err := client.Send(msg); err != nil {
			// The queue is full or the connection is gone. Closing here is
			// safe: the read loop observes the closed connection and
			// unregisters the client.
			_ = client.Close()
		}
	}
}

// BroadcastUpdate fans a reconciled batch out to the other participants.
func (h *Hub) BroadcastUpdate(docID string, revision int, batch ot.Batch, userID, excludeClientID string) {
	h.Broadcast(docID, Message{
		Type: MessageTypeBroadcast,
		Payload: BroadcastPayload{
			DocID:    docID,
			Revision: revision,
			Batch:    batch,
			UserID:   userID,
		},
	}, excludeClientID)
}

// BroadcastCursor fans a participant's cursor position out to its peers.
func (h *Hub) BroadcastCursor(docID, participantID, userID string, position int) {
	h.Broadcast(docID, Message{
		Type: MessageTypeCursorUpdate,
		Payload: CursorUpdatePayload{
			DocID:         docID,
			ParticipantID: participantID,
			UserID:        userID,
			Position:      position,
		},
	}, participantID)
}

// BroadcastPresence announces a joining participant to its peers.
func (h *Hub) BroadcastPresence(docID, participantID, userID string) {
	h.Broadcast(docID, Message{
		Type: MessageTypePresence,
		Payload: PresencePayload{
			DocID:         docID,
			ParticipantID: participantID,
			UserID:        userID,
		},
	}, participantID)
}

// BroadcastPresenceRemove announces a leaving participant to its peers.
func (h *Hub) BroadcastPresenceRemove(docID, participantID string) {
	h.Broadcast(docID, Message{
		Type: MessageTypePresenceRemove,
		Payload: PresenceRemovePayload{
			DocID:         docID,
			ParticipantID: participantID,
		},
	}, participantID)
}

// ClientCount returns the number of clients subscribed to a document.
func (h *Hub) ClientCount(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.documents[docID]; ok {
		return len(clients)
	}

	return 0
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
