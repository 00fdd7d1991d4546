// internal/api/stream.go
package api

import (
	"context"
	"errors"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	commonerrors "github.com/sbgadvisor/WellNavigator2/internal/common/errors"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	FrameChunk  = "chunk"
	FrameDone   = "done"
	FrameError  = "error"
	FrameCancel = "cancel"

	writeWait = 10 * time.Second
)

var errClientGone = errors.New("client disconnected")

// ServerFrame is one message written to the stream socket.
type ServerFrame struct {
	Type    string                 `json:"type"`
	Content string                 `json:"content,omitempty"`
	Result  *chat.TurnResult       `json:"result,omitempty"`
	Error   *commonerrors.APIError `json:"error,omitempty"`
}

// StreamTurns handles GET /v1/sessions/:id/stream. Each {"text": ...} frame
// starts a turn whose fragments come back as chunk frames followed by one
// done frame. A {"type": "cancel"} frame stops the running turn.
func (s *Server) StreamTurns(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		return s.sessionError(c, id, err)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{
			"sessionId": id,
			"error":     err.Error(),
		})
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	incoming := make(chan TurnRequest)
	go s.readFrames(ctx, conn, incoming)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-incoming:
			if !ok {
				return nil
			}
			if req.Type == FrameCancel {
				continue
			}
			if err := s.streamTurn(ctx, conn, sess, req.Text, incoming); err != nil {
				if !errors.Is(err, errClientGone) {
					s.logger.Debug("stream socket closed", map[string]interface{}{
						"sessionId": id,
						"error":     err.Error(),
					})
				}
				return nil
			}
		}
	}
}

func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, out chan<- TurnRequest) {
	defer close(out)
	for {
		var req TurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		select {
		case out <- req:
		case <-ctx.Done():
			return
		}
	}
}

// streamTurn runs one turn over the socket. Frames other than cancel that
// arrive mid-turn are dropped.
func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, sess *chat.Session, text string, incoming <-chan TurnRequest) error {
	stream, err := s.pipeline.ProcessTurn(ctx, sess, text)
	if err != nil {
		var apiErr *commonerrors.APIError
		switch {
		case errors.Is(err, chat.ErrEmptyInput):
			apiErr = s.errHandler.HandleTurnError(sess.ID(), commonerrors.NewInvalidInputError("text is required"))
		default:
			apiErr = s.errHandler.HandleTurnError(sess.ID(), err)
		}
		return s.write(conn, ServerFrame{Type: FrameError, Error: apiErr})
	}

	chunks := stream.Chunks()
	for chunks != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if err := s.write(conn, ServerFrame{Type: FrameChunk, Content: chunk}); err != nil {
				stream.Cancel()
				stream.Result()
				return err
			}
		case req, ok := <-incoming:
			if !ok {
				stream.Cancel()
				stream.Result()
				return errClientGone
			}
			if req.Type == FrameCancel {
				stream.Cancel()
			}
		}
	}

	res := stream.Result()
	return s.write(conn, ServerFrame{Type: FrameDone, Result: &res})
}

func (s *Server) write(conn *websocket.Conn, frame ServerFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
