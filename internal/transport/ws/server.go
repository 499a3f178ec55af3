// Package ws provides the WebSocket chat endpoint.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/chatd/internal/config"
	"github.com/xiaot623/chatd/internal/domain"
	"github.com/xiaot623/chatd/internal/service"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *Hub
	service  *service.Service
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *Hub, svc *service.Service) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checks belong to the gateway in front of chatd.
				return true
			},
		},
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws, s.cfg.WSWriteTimeout)
	s.hub.Register(conn)

	if s.cfg.WSMaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.WSMaxMessageSize)
	}

	go s.pingPump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages until the client leaves, then cancels its turns.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.cancel()
		conn.turns.Wait()
		conn.Close()
	}()

	s.extendReadDeadline(conn)
	conn.Conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(conn)
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		s.extendReadDeadline(conn)
		s.handleMessage(conn, message)
	}
}

func (s *Server) extendReadDeadline(conn *Connection) {
	if s.cfg.WSReadTimeout > 0 {
		conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
	}
}

// pingPump keeps the connection alive until it is closed.
func (s *Server) pingPump(conn *Connection) {
	if s.cfg.WSPingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WSWriteTimeout)
			if err := conn.Conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var baseMsg BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, baseMsg, ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case TypeHello:
		s.handleHello(conn, data)
	case TypeChat:
		s.handleChat(conn, data)
	case TypeCancel:
		s.handleCancel(conn, data)
	default:
		s.sendError(conn, baseMsg, ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello binds the connection to a user.
func (s *Server) handleHello(conn *Connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, msg.BaseMessage, ErrorCodeInvalidMessage, "invalid hello message")
		return
	}
	if msg.UserID == "" {
		s.sendError(conn, msg.BaseMessage, ErrorCodeInvalidMessage, "user_id is required")
		return
	}

	conn.bindUser(msg.UserID)
	conn.WriteJSON(HelloAckMessage{
		BaseMessage:  reply(TypeHelloAck, msg.BaseMessage),
		ConnectionID: conn.ID,
		UserID:       msg.UserID,
	})

	log.Printf("Hello handshake completed for connection %s (user %s)", conn.ID, msg.UserID)
}

// handleChat runs a turn in its own goroutine so that cancel frames can still
// be read while it streams.
func (s *Server) handleChat(conn *Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, msg.BaseMessage, ErrorCodeInvalidMessage, "invalid chat message")
		return
	}
	userID := conn.UserID()
	if userID == "" {
		s.sendError(conn, msg.BaseMessage, ErrorCodeHelloRequired, "must send hello first")
		return
	}
	if msg.ConversationID == "" {
		s.sendError(conn, msg.BaseMessage, ErrorCodeInvalidMessage, "conversation_id is required")
		return
	}

	req := domain.TurnRequest{
		Message:     msg.Message,
		Temperature: msg.Temperature,
		MaxTokens:   msg.MaxTokens,
	}

	conn.turns.Add(1)
	go func() {
		defer conn.turns.Done()

		sink := &frameSink{conn: conn, base: msg.BaseMessage}
		if _, err := s.service.StreamTurn(conn.ctx, userID, msg.ConversationID, req, sink); err != nil {
			code := errorCode(err)
			text := err.Error()
			if code == domain.KindInternal {
				log.Printf("ERROR: turn on %s for connection %s: %v", msg.ConversationID, conn.ID, err)
				text = "internal error"
			}
			s.sendError(conn, msg.BaseMessage, string(code), text)
		}
	}()
}

// handleCancel stops the turn in flight on a conversation.
func (s *Server) handleCancel(conn *Connection, data []byte) {
	var msg CancelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, msg.BaseMessage, ErrorCodeInvalidMessage, "invalid cancel message")
		return
	}
	userID := conn.UserID()
	if userID == "" {
		s.sendError(conn, msg.BaseMessage, ErrorCodeHelloRequired, "must send hello first")
		return
	}
	if err := s.service.CancelTurn(conn.ctx, userID, msg.ConversationID); err != nil {
		s.sendError(conn, msg.BaseMessage, string(errorCode(err)), err.Error())
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *Connection, base BaseMessage, code, message string) {
	conn.WriteJSON(ErrorMessage{
		BaseMessage: reply(TypeError, base),
		Code:        code,
		Message:     message,
	})
}

func reply(msgType string, req BaseMessage) BaseMessage {
	return BaseMessage{
		Type:           msgType,
		Ts:             time.Now().UnixMilli(),
		RequestID:      req.RequestID,
		ConversationID: req.ConversationID,
	}
}

func errorCode(err error) domain.ErrorKind {
	if kind := domain.KindOf(err); kind != "" {
		return kind
	}
	return domain.KindInternal
}

// frameSink writes turn frames to one connection.
type frameSink struct {
	conn *Connection
	base BaseMessage
}

func (f *frameSink) Send(event domain.StreamEvent) error {
	switch {
	case event.Error != "":
		return f.conn.WriteJSON(ErrorMessage{
			BaseMessage: reply(TypeError, f.base),
			Code:        event.Code,
			Message:     event.Error,
		})
	case event.Done:
		return f.conn.WriteJSON(DoneMessage{
			BaseMessage: reply(TypeDone, f.base),
			MessageID:   event.MessageID,
			Truncated:   event.Truncated,
		})
	default:
		return f.conn.WriteJSON(ContentMessage{
			BaseMessage: reply(TypeContent, f.base),
			Content:     event.Content,
		})
	}
}
