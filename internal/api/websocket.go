package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/davrk/syncpad/internal/collab"
	"github.com/davrk/syncpad/internal/ot"
	"github.com/davrk/syncpad/internal/ws"
)

// handleWebSocket handles GET /ws?docId={id}: it upgrades the connection,
// joins the participant to the document session, sends the init snapshot
// and then serves update/cursor events until the connection drops, which
// counts as an implicit leave.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "docId query parameter is required", http.StatusBadRequest)

		return
	}

	userID := UserIDFromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")

		return
	}

	client := ws.NewClient(uuid.New().String(), userID, conn)
	s.hub.Register(client)
	s.hub.Subscribe(client, docID)

	session, err := s.joinSession(r, client, docID, userID)
	if err != nil {
		s.hub.Unregister(client)
		_ = client.Close()

		return
	}

	defer func() {
		session.Leave(client.ID)
		s.hub.Unregister(client)
		_ = client.Close()
	}()

	s.serveMessages(client, session, docID, userID)
}

// joinSession loads the document session and initializes the client with a
// full snapshot.
func (s *Server) joinSession(r *http.Request, client *ws.Client, docID, userID string) (*collab.Session, error) {
	session, err := s.manager.Session(r.Context(), docID)
	if err != nil {
		if errors.Is(err, collab.ErrLoadTimeout) {
			_ = client.SendError(ws.ErrorCodeLoadTimeout, "document load timed out, retry")
		} else {
			_ = client.SendError(ws.ErrorCodeInternalError, "failed to load document")
		}

		return nil, err
	}

	snapshot, err := session.Join(client.ID, userID)
	if err != nil {
		_ = client.SendError(ws.ErrorCodeInternalError, "failed to join document")

		return nil, err
	}

	if err := client.Send(ws.Message{
		Type: ws.MessageTypeInit,
		Payload: ws.InitPayload{
			DocID:    docID,
			Content:  snapshot.Content,
			Revision: snapshot.Revision,
			Presence: snapshot.Presence,
		},
	}); err != nil {
		return nil, err
	}

	return session, nil
}

// serveMessages processes incoming messages until the connection drops.
func (s *Server) serveMessages(client *ws.Client, session *collab.Session, docID, userID string) {
	for {
		msg, err := client.Receive()
		if err != nil {
			return
		}

		switch msg.Type {
		case ws.MessageTypeUpdate:
			s.handleUpdate(client, session, docID, userID, msg)
		case ws.MessageTypeCursor:
			s.handleCursor(client, session, docID, msg)
		default:
			_ = client.SendError(ws.ErrorCodeInvalidMessage, "unexpected message type")
		}
	}
}

// handleUpdate reconciles a client batch and acknowledges the originator.
func (s *Server) handleUpdate(client *ws.Client, session *collab.Session, docID, userID string, msg ws.Message) {
	payload, ok := msg.Payload.(ws.UpdatePayload)
	if !ok || payload.DocID != docID || len(payload.Batch) == 0 {
		_ = client.SendError(ws.ErrorCodeInvalidMessage, "invalid update payload")

		return
	}

	revision, err := session.Update(client.ID, userID, payload.Batch, payload.BaseRevision, payload.Cursor)
	if err != nil {
		s.sendUpdateError(client, err)

		return
	}

	_ = client.Send(ws.Message{
		Type: ws.MessageTypeAck,
		Payload: ws.AckPayload{
			DocID:    docID,
			Revision: revision,
		},
	})
}

// sendUpdateError maps coordinator errors to wire error codes.
func (s *Server) sendUpdateError(client *ws.Client, err error) {
	switch {
	case errors.Is(err, ot.ErrFutureRevision):
		_ = client.SendError(ws.ErrorCodeStaleFutureRevision,
			"base revision is ahead of the server, rejoin to resynchronize")
	case errors.Is(err, ot.ErrRevisionTooOld):
		_ = client.SendError(ws.ErrorCodeRevisionTooOld,
			"base revision is no longer retained, rejoin to resynchronize")
	case errors.Is(err, collab.ErrCorruptOperation):
		_ = client.SendError(ws.ErrorCodeCorruptOperation, "operation targets an invalid position")
	default:
		_ = client.SendError(ws.ErrorCodeInternalError, "failed to apply update")
	}
}

// handleCursor updates and fans out the participant's cursor position.
func (s *Server) handleCursor(client *ws.Client, session *collab.Session, docID string, msg ws.Message) {
	payload, ok := msg.Payload.(ws.CursorPayload)
	if !ok || payload.DocID != docID {
		_ = client.SendError(ws.ErrorCodeInvalidMessage, "invalid cursor payload")

		return
	}

	session.Cursor(client.ID, payload.Position)
}
