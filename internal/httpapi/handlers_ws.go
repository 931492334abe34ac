package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"bounty-qa/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket streams tally updates for one answer.
func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := answerID(c)
	if err != nil {
		return err
	}
	if _, err := s.qa.GetAnswer(ctx, id); err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.DebugContext(ctx, "websocket upgrade failed", "error", err)
		return nil
	}

	if err := s.hub.Subscribe(id, conn); err != nil {
		reason := "subscribe failed"
		if errors.Is(err, broadcast.ErrTooManySubscribers) {
			reason = "too many subscribers"
		}
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason)
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return nil
	}

	// Read pump: blocks until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.Unsubscribe(id, conn)
	return nil
}
