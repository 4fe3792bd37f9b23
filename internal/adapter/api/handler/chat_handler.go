package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"chatsync/internal/domain/repository"
	"chatsync/internal/usecase"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
	"chatsync/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id" form:"recipient_id" validate:"required"`
	Text        string `json:"text" form:"text"`
}

// SendMessage sends a message to another user. Accepts JSON for plain text
// or multipart form data with an optional "file" part for attachments.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	userID := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	input := usecase.SendMessageInput{
		RecipientID: req.RecipientID,
		Text:        req.Text,
	}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if fileHeader, err := c.FormFile("file"); err == nil {
			file, err := fileHeader.Open()
			if err != nil {
				logger.Error("SendMessage Error: cannot open uploaded file: %v", err)
				return response.Error(c, errors.BadRequest("Missing or invalid file", err))
			}
			defer file.Close()

			input.Attachment = &usecase.AttachmentUpload{
				Filename: fileHeader.Filename,
				MIMEType: fileHeader.Header.Get("Content-Type"),
				Size:     fileHeader.Size,
				Content:  file,
			}
		}
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetUserChats returns the caller's inbox, most recent activity first.
func (h *ChatHandler) GetUserChats(c echo.Context) error {
	userID := c.Get("uid").(string)

	chats, err := h.chatUseCase.ListChats(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, chats)
}

// GetChatMessages returns one page of a chat's message log. Without cursor
// parameters it returns the most recent page; with cursor_time and
// cursor_id it returns the page strictly older than that position.
func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	chatID := c.Param("id")
	userID := c.Get("uid").(string)

	cursorTime := c.QueryParam("cursor_time")
	cursorID := c.QueryParam("cursor_id")

	var page *repository.MessagePage
	var err error

	if cursorTime == "" && cursorID == "" {
		page, err = h.chatUseCase.LoadInitial(c.Request().Context(), userID, chatID)
	} else {
		parsed, parseErr := time.Parse(time.RFC3339Nano, cursorTime)
		if parseErr != nil || cursorID == "" {
			return response.Error(c, errors.BadRequest("Invalid cursor", parseErr))
		}
		cursor := &repository.MessageCursor{Timestamp: parsed, ID: cursorID}
		page, err = h.chatUseCase.LoadMore(c.Request().Context(), userID, chatID, cursor)
	}

	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, page)
}

// MarkChatAsRead marks a chat as read for the authenticated user.
func (h *ChatHandler) MarkChatAsRead(c echo.Context) error {
	chatID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.chatUseCase.MarkChatAsRead(c.Request().Context(), userID, chatID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}
