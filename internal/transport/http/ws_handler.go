package http

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kupantip/chat-server/internal/core"
	"github.com/kupantip/chat-server/internal/metrics"
	"github.com/kupantip/chat-server/internal/proto"
)

// handleWS upgrades the connection and bridges it to a hub client. The
// token travels as a query parameter because browser WebSocket APIs
// cannot set headers.
func (s *Server) handleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(401, ErrorResponse{Code: "unauthorized", Msg: "token is required"})
		return
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		s.log.Debug().Err(err).Msg("ws token rejected")
		c.JSON(401, ErrorResponse{Code: "unauthorized", Msg: "invalid token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	client := core.NewClient(uuid.NewString(), claims.UserID, claims.Handle, claims.DisplayName, claims.IsGuest)
	s.hub.RegisterClient(client)
	defer s.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	limiter := newRateLimiter(s.cfg.WSRateLimitPerMin)

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- s.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if st := websocket.CloseStatus(err); st != 0 {
			status = st
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			s.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			s.log.Warn().Err(err).Str("client_id", client.ID).Msg("malformed inbound frame")
			return err
		}
		if protoErr == nil && cmd != nil && cmd.Kind == core.CommandSendMessage && !limiter.allow() {
			protoErr = &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages, slow down"}
			cmd = nil
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			select {
			case client.Commands <- cmd:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
