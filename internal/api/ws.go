package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-lesson/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 1 << 20
)

// Websocket command types sent by the client as text frames. Binary frames
// carry microphone audio for the recording in progress.
const (
	CommandMedia          = "media"
	CommandRecordingStart = "recording.start"
	CommandRecordingStop  = "recording.stop"
)

// Replies to websocket commands.
const (
	UpdateFeedback = "feedback"
	UpdateError    = "error"
)

type command struct {
	Type   string              `json:"type"`
	StepID string              `json:"stepId,omitempty"`
	Event  *session.MediaEvent `json:"event,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	// Server-wide deadlines would otherwise carry over to the hijacked connection.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sess.ID(), "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(wsReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newClient(defaultClientBuffer)
	s.hub.Register(sess.ID(), c)
	defer s.hub.Unregister(sess.ID(), c)

	c.trySend(session.Update{Type: session.UpdateState, SessionID: sess.ID(), Data: view(sess)})

	go s.writeLoop(ctx, cancel, conn, c)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Debug("websocket read ended", "session_id", sess.ID(), "error", err)
			}
			return
		}

		if typ == websocket.MessageBinary {
			if err := sess.WriteAudio(data); err != nil {
				c.trySend(errorUpdate(sess.ID(), err))
			}
			continue
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.trySend(errorUpdate(sess.ID(), errBadRequest))
			continue
		}
		if reply, ok := s.dispatch(ctx, sess, cmd); ok {
			c.trySend(reply)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, cmd command) (session.Update, bool) {
	switch cmd.Type {
	case CommandRecordingStart:
		if err := sess.StartRecording(ctx, cmd.StepID); err != nil {
			return errorUpdate(sess.ID(), err), true
		}
		return session.Update{}, false

	case CommandRecordingStop:
		fb, err := sess.StopRecording(ctx)
		if err != nil {
			return errorUpdate(sess.ID(), err), true
		}
		return session.Update{Type: UpdateFeedback, SessionID: sess.ID(), Data: fb}, true

	case CommandMedia:
		if cmd.Event == nil {
			return errorUpdate(sess.ID(), errBadRequest), true
		}
		if _, err := sess.HandleMediaEvent(ctx, *cmd.Event); err != nil {
			return errorUpdate(sess.ID(), err), true
		}
		return session.Update{}, false
	}

	slog.Debug("unknown websocket command", "session_id", sess.ID(), "type", cmd.Type)
	return errorUpdate(sess.ID(), errBadRequest), true
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			_ = conn.Close(websocket.StatusNormalClosure, "session ended")
			return
		case u := <-c.out:
			wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, u)
			wcancel()
			if err != nil {
				slog.Debug("websocket write failed", "session_id", u.SessionID, "error", err)
				return
			}
		}
	}
}

func errorUpdate(sessionID string, err error) session.Update {
	resp := errorResponse{Error: err.Error()}
	if te, ok := session.AsTransient(err); ok {
		resp.Message = te.Message
	}
	return session.Update{Type: UpdateError, SessionID: sessionID, Data: resp}
}
