package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

const liveWriteTimeout = 10 * time.Second

// handleLiveFeed streams flow events to a websocket subscriber. Each
// subscriber gets a buffered channel from the broker; slow readers miss
// events rather than blocking the ledger.
func (s *Server) handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("live feed websocket accept failed")
		return
	}
	defer conn.CloseNow()

	events := s.broker.Subscribe()
	defer s.broker.Unsubscribe(events)

	// CloseRead returns a context that is canceled when the client
	// disconnects. We never expect inbound messages.
	ctx := conn.CloseRead(r.Context())

	log.Debug().Str("remote", r.RemoteAddr).Msg("live feed subscriber connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("live feed write failed")
				return
			}
		}
	}
}
