package ws

import "github.com/davrk/syncpad/internal/ot"

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	// Client to Server messages. Joining is implicit in the connection: the
	// document ID travels in the upgrade request, and disconnecting is an
	// implicit leave.
	MessageTypeUpdate MessageType = "update" // Client submits an edit batch
	MessageTypeCursor MessageType = "cursor" // Client moves its cursor

	// Server to Client messages.
	MessageTypeInit           MessageType = "init"            // Full snapshot on join
	MessageTypeAck            MessageType = "ack"             // Server confirms batch applied
	MessageTypeBroadcast      MessageType = "broadcast"       // Server pushes a batch to peers
	MessageTypeCursorUpdate   MessageType = "cursor_update"   // Server pushes a peer's cursor
	MessageTypePresence       MessageType = "presence"        // Server pushes a joining peer
	MessageTypePresenceRemove MessageType = "presence_remove" // Server pushes a leaving peer
	MessageTypeError          MessageType = "error"           // Server reports an error
)

// Message is the envelope for all WebSocket communication.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// UpdatePayload is sent when a client submits an edit batch. Cursor, when
// set, piggy-backs the client's cursor position after the edit.
type UpdatePayload struct {
	DocID        string   `json:"docId"`
	BaseRevision int      `json:"baseRevision"`
	Batch        ot.Batch `json:"batch"`
	Cursor       *int     `json:"cursor,omitempty"`
}

// CursorPayload is sent when a client moves its cursor without editing.
type CursorPayload struct {
	DocID    string `json:"docId"`
	Position int    `json:"position"`
}

// PresenceEntry describes one participant in a document's presence map.
// A cursor of -1 means the participant has not reported a position yet.
type PresenceEntry struct {
	UserID string `json:"userId"`
	Cursor int    `json:"cursor"`
}

// InitPayload carries the full snapshot a client needs to initialize its
// local buffer without history replay.
type InitPayload struct {
	DocID    string                   `json:"docId"`
	Content  string                   `json:"content"`
	Revision int                      `json:"revision"`
	Presence map[string]PresenceEntry `json:"presence"`
}

// AckPayload confirms a batch was applied and carries the assigned revision
// so the client can rebase its pending local edits.
type AckPayload struct {
	DocID    string `json:"docId"`
	Revision int    `json:"revision"`
}

// BroadcastPayload pushes a reconciled batch to the other participants.
type BroadcastPayload struct {
	DocID    string   `json:"docId"`
	Revision int      `json:"revision"`
	Batch    ot.Batch `json:"batch"`
	UserID   string   `json:"userId"`
}

// CursorUpdatePayload pushes a peer's cursor position.
type CursorUpdatePayload struct {
	DocID         string `json:"docId"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	Position      int    `json:"position"`
}

// PresencePayload announces a participant joining a document.
type PresencePayload struct {
	DocID         string `json:"docId"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
}

// PresenceRemovePayload announces a participant leaving a document.
type PresenceRemovePayload struct {
	DocID         string `json:"docId"`
	ParticipantID string `json:"participantId"`
}

// ErrorPayload reports an error to the client. It carries a code and a
// human-readable message, never internal state.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrorCodeStaleFutureRevision = "stale_future_revision"
	ErrorCodeRevisionTooOld      = "revision_too_old"
	ErrorCodeCorruptOperation    = "corrupt_operation"
	ErrorCodeLoadTimeout         = "load_timeout"
	ErrorCodeInvalidMessage      = "invalid_message"
	ErrorCodeInternalError       = "internal_error"
)
