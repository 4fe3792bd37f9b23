package handler

import (
	"context"
	"encoding/json"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/middleware"
	ws "chatsync/internal/infrastructure/websocket"
	"chatsync/internal/usecase"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

type WebSocketHandler struct {
	wsManager      *ws.Manager
	authMiddleware *middleware.AuthMiddleware
	chatUseCase    *usecase.ChatUseCase
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins before exposing beyond the prototype
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware, chatUseCase *usecase.ChatUseCase) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:      wsManager,
		authMiddleware: authMiddleware,
		chatUseCase:    chatUseCase,
	}
}

// clientCommand is the envelope clients send over the socket.
type clientCommand struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// HandleWebSocket upgrades the connection and runs the client's session.
// Browsers cannot set headers on websocket requests, so the token arrives
// as a query parameter instead of the usual bearer header.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	userID, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.wsManager.Register <- client

	go client.ReadPump(h.wsManager, h.dispatch)
	go client.WritePump()

	return nil
}

// dispatch routes one inbound client command to the chat use case.
func (h *WebSocketHandler) dispatch(userID string, payload []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		logger.Warn("websocket: malformed command from %s: %v", userID, err)
		return
	}
	if cmd.ChatID == "" {
		logger.Warn("websocket: command %q from %s missing chat_id", cmd.Type, userID)
		return
	}

	ctx := context.Background()

	switch cmd.Type {
	case "join_chat":
		if err := h.chatUseCase.OpenChat(ctx, userID, cmd.ChatID); err != nil {
			logger.Warn("websocket: join_chat %s by %s rejected: %v", cmd.ChatID, userID, err)
		}
	case "leave_chat":
		h.chatUseCase.CloseChat(userID, cmd.ChatID)
	case "mark_read":
		if err := h.chatUseCase.MarkChatAsRead(ctx, userID, cmd.ChatID); err != nil {
			logger.Warn("websocket: mark_read %s by %s failed: %v", cmd.ChatID, userID, err)
		}
	default:
		logger.Warn("websocket: unknown command %q from %s", cmd.Type, userID)
	}
}
