package usecase

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/internal/domain/service"
	"chatsync/internal/infrastructure/ratelimit"
	ws "chatsync/internal/infrastructure/websocket"
	"chatsync/internal/stream"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
	"chatsync/pkg/retry"
)

const unknownUserName = "Unknown User"

var allowedAttachmentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"video/mp4":  true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	blobStore   service.BlobStore
	wsManager   *ws.Manager
	rateLimiter *ratelimit.RateLimiter
	retryPolicy retry.Policy

	pageSize      int
	maxUploadSize int64
	viewLocation  *time.Location

	feedMu sync.Mutex
	feeds  map[string]*chatFeed
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	blobStore service.BlobStore,
	wsManager *ws.Manager,
	pageSize int,
	maxUploadSize int64,
) *ChatUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &ChatUseCase{
		chatRepo:      chatRepo,
		userRepo:      userRepo,
		blobStore:     blobStore,
		wsManager:     wsManager,
		rateLimiter:   rateLimiter,
		retryPolicy:   retry.DefaultPolicy(),
		pageSize:      pageSize,
		maxUploadSize: maxUploadSize,
		viewLocation:  time.Local,
		feeds:         make(map[string]*chatFeed),
	}
}

// AttachmentUpload carries one pending upload into the send pipeline.
type AttachmentUpload struct {
	Filename string
	MIMEType string
	Size     int64
	Content  io.Reader
}

type SendMessageInput struct {
	RecipientID string
	Text        string
	Attachment  *AttachmentUpload
}

// ChatPreview is one row of the inbox list.
type ChatPreview struct {
	ChatID          string         `json:"chat_id"`
	UnreadCount     int            `json:"unread_count"`
	LastMessage     string         `json:"last_message,omitempty"`
	LastMessageTime time.Time      `json:"last_message_time"`
	LastRead        time.Time      `json:"last_read"`
	OtherUser       entity.UserRef `json:"other_user"`
}

// SendMessage runs the full send pipeline: attachment upload first, then
// metadata upserts for both sides, then one atomic append. The message id
// is fixed before any write so a retried commit cannot duplicate it.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*entity.Message, error) {
	if allowed, waitTime := uc.rateLimiter.Allow(senderID, "send_message"); !allowed {
		logger.Warn("SendMessage Rate Limited: User %s must wait %v", senderID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	if senderID == input.RecipientID {
		return nil, errors.BadRequest("You cannot send a message to yourself", nil)
	}
	if input.Text == "" && input.Attachment == nil {
		return nil, errors.BadRequest("Message text is required", nil)
	}

	chatID, err := entity.ChatID(senderID, input.RecipientID)
	if err != nil {
		return nil, err
	}

	message := &entity.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      input.Text,
		Timestamp: time.Now(),
		Status:    entity.MessageStatusSent,
	}

	// Upload before any log/metadata write: an upload failure must not
	// leave a partial message behind. The orphaned blob on a later commit
	// failure is an accepted risk.
	if input.Attachment != nil {
		attachment, err := uc.uploadAttachment(ctx, chatID, message.ID, input.Attachment)
		if err != nil {
			logger.Error("SendMessage Error: attachment upload failed for chat %s: %v", chatID, err)
			return nil, err
		}
		message.Attachment = attachment

		if message.Text == "" {
			// Downstream list rendering never shows a blank bubble.
			message.Text = "📎 " + attachment.Name
		}
	}

	if err := uc.ensureMetadataBothSides(ctx, senderID, input.RecipientID, chatID); err != nil {
		return nil, err
	}

	err = uc.retryPolicy.Do(ctx, "append message", func(ctx context.Context) error {
		return uc.chatRepo.AppendMessage(ctx, message, input.RecipientID)
	})
	if err != nil {
		logger.Error("SendMessage Error: failed to commit message for chat %s: %v", chatID, err)
		return nil, err
	}

	uc.publishNewMessage(message, input.RecipientID)

	return message, nil
}

func (uc *ChatUseCase) uploadAttachment(ctx context.Context, chatID, messageID string, upload *AttachmentUpload) (*entity.Attachment, error) {
	if upload.Size > uc.maxUploadSize {
		return nil, errors.BadRequest("Attachment exceeds the size limit", nil)
	}
	if !allowedAttachmentTypes[upload.MIMEType] {
		return nil, errors.BadRequest("Attachment type not supported", nil)
	}

	attachment, err := uc.blobStore.UploadAttachment(ctx, chatID, messageID, upload.Filename, upload.MIMEType, upload.Content)
	if err != nil {
		return nil, errors.Unavailable("Attachment upload failed", err)
	}
	return attachment, nil
}

// ensureMetadataBothSides lazily creates both metadata records. Each side
// embeds the other party's display info; a failed directory lookup falls
// back to a placeholder rather than blocking the send.
func (uc *ChatUseCase) ensureMetadataBothSides(ctx context.Context, senderID, recipientID, chatID string) error {
	participants := []string{senderID, recipientID}

	for _, pair := range [][2]string{{senderID, recipientID}, {recipientID, senderID}} {
		owner, other := pair[0], pair[1]

		otherRef := &entity.UserRef{ID: other, DisplayName: unknownUserName}
		if user, err := uc.userRepo.GetByID(ctx, other); err == nil {
			otherRef.DisplayName = user.DisplayName
			otherRef.PhotoURL = user.PhotoURL
		} else {
			logger.Warn("SendMessage Warning: counterpart %s not found for metadata: %v", other, err)
		}

		err := uc.retryPolicy.Do(ctx, "ensure chat metadata", func(ctx context.Context) error {
			return uc.chatRepo.EnsureMetadata(ctx, owner, chatID, participants, otherRef)
		})
		if err != nil {
			logger.Error("SendMessage Error: failed to ensure metadata for user %s chat %s: %v", owner, chatID, err)
			return err
		}
	}

	return nil
}

// MarkChatAsRead zeroes the caller's unread counter and flips pending
// messages from the other party to read. Idempotent; failures are
// retryable and must not block message display.
func (uc *ChatUseCase) MarkChatAsRead(ctx context.Context, userID, chatID string) error {
	if _, err := entity.ChatCounterpart(chatID, userID); err != nil {
		return err
	}

	if allowed, _ := uc.rateLimiter.Allow(userID, "mark_read"); !allowed {
		return nil // excess read-marking is silently coalesced
	}

	err := uc.retryPolicy.Do(ctx, "mark chat read", func(ctx context.Context) error {
		return uc.chatRepo.MarkChatRead(ctx, userID, chatID)
	})
	if err != nil {
		logger.Warn("MarkChatAsRead: chat %s left stale for user %s: %v", chatID, userID, err)
		return err
	}

	receipt, _ := json.Marshal(map[string]interface{}{
		"type":      "chat_read",
		"chat_id":   chatID,
		"reader_id": userID,
	})
	uc.wsManager.SendToChatRoom(chatID, receipt, userID)

	return nil
}

// LoadInitial returns the most recent page of the chat, oldest-first, with
// a cursor at the oldest item returned.
func (uc *ChatUseCase) LoadInitial(ctx context.Context, userID, chatID string) (*repository.MessagePage, error) {
	if _, err := entity.ChatCounterpart(chatID, userID); err != nil {
		return nil, err
	}
	return uc.chatRepo.GetMessagesPage(ctx, chatID, nil, uc.pageSize)
}

// LoadMore returns the next page strictly older than the cursor.
func (uc *ChatUseCase) LoadMore(ctx context.Context, userID, chatID string, cursor *repository.MessageCursor) (*repository.MessagePage, error) {
	if _, err := entity.ChatCounterpart(chatID, userID); err != nil {
		return nil, err
	}
	if cursor == nil {
		return nil, errors.BadRequest("Cursor is required", nil)
	}
	return uc.chatRepo.GetMessagesPage(ctx, chatID, cursor, uc.pageSize)
}

// ListChats builds the inbox: metadata records sorted by last activity,
// counterpart identity resolved with a placeholder on any lookup miss.
func (uc *ChatUseCase) ListChats(ctx context.Context, userID string) ([]*ChatPreview, error) {
	records, err := uc.chatRepo.ListChatMetadata(ctx, userID)
	if err != nil {
		logger.Error("ListChats Error: failed to list metadata for user %s: %v", userID, err)
		return nil, err
	}

	previews := make([]*ChatPreview, 0, len(records))
	for _, metadata := range records {
		preview := &ChatPreview{
			ChatID:          metadata.ChatID,
			UnreadCount:     metadata.UnreadCount,
			LastMessage:     metadata.LastMessage,
			LastMessageTime: metadata.LastMessageTime,
			LastRead:        metadata.LastRead,
			OtherUser:       entity.UserRef{DisplayName: unknownUserName},
		}

		otherID, err := metadata.CounterpartID(userID)
		if err != nil {
			logger.Warn("ListChats Warning: cannot derive counterpart for chat %s: %v", metadata.ChatID, err)
			previews = append(previews, preview)
			continue
		}
		preview.OtherUser.ID = otherID

		if metadata.OtherUser != nil && metadata.OtherUser.DisplayName != "" {
			preview.OtherUser = *metadata.OtherUser
		} else if user, err := uc.userRepo.GetByID(ctx, otherID); err == nil {
			preview.OtherUser.DisplayName = user.DisplayName
			preview.OtherUser.PhotoURL = user.PhotoURL
		} else {
			logger.Warn("ListChats Warning: counterpart %s not found for chat %s: %v", otherID, metadata.ChatID, err)
		}

		previews = append(previews, preview)
	}

	// Most recent activity first.
	sort.Slice(previews, func(i, j int) bool {
		return previews[i].LastMessageTime.After(previews[j].LastMessageTime)
	})

	return previews, nil
}

func (uc *ChatUseCase) publishNewMessage(message *entity.Message, recipientID string) {
	event, _ := json.Marshal(map[string]interface{}{
		"type":    "new_message",
		"chat_id": message.ChatID,
		"message": message,
	})
	uc.wsManager.SendToChatRoom(message.ChatID, event, message.SenderID)

	// Users on the inbox screen (not in the room) still see the update.
	listUpdate, _ := json.Marshal(map[string]interface{}{
		"type":              "chat_list_update",
		"chat_id":           message.ChatID,
		"last_message":      message.Text,
		"last_message_time": message.Timestamp.Format(time.RFC3339),
		"sender_id":         message.SenderID,
	})
	uc.wsManager.SendToUser(recipientID, listUpdate)
}

// chatFeed bridges one chat's snapshot subscription into its websocket
// room, reconciling each batch into a stable view before pushing it.
type chatFeed struct {
	sub        repository.Subscription
	reconciler *stream.Reconciler
	done       chan struct{}
}

// OpenChat joins the user to the chat room and starts the live feed for
// the chat if it is not already running.
func (uc *ChatUseCase) OpenChat(ctx context.Context, userID, chatID string) error {
	if _, err := entity.ChatCounterpart(chatID, userID); err != nil {
		return err
	}

	uc.wsManager.JoinRoom(chatID, userID)

	uc.feedMu.Lock()
	defer uc.feedMu.Unlock()

	if _, running := uc.feeds[chatID]; running {
		return nil
	}

	sub, err := uc.chatRepo.SubscribeMessages(ctx, chatID)
	if err != nil {
		uc.wsManager.LeaveRoom(chatID, userID)
		logger.Error("OpenChat Error: failed to subscribe to chat %s: %v", chatID, err)
		return err
	}

	feed := &chatFeed{
		sub:        sub,
		reconciler: stream.NewReconciler(uc.viewLocation),
		done:       make(chan struct{}),
	}
	uc.feeds[chatID] = feed

	go uc.runFeed(chatID, feed)

	return nil
}

// CloseChat removes the user from the room and stops the feed once nobody
// has the chat open. No events are delivered after the stop returns.
func (uc *ChatUseCase) CloseChat(userID, chatID string) {
	uc.wsManager.LeaveRoom(chatID, userID)

	uc.feedMu.Lock()
	feed, running := uc.feeds[chatID]
	if running && uc.wsManager.RoomEmpty(chatID) {
		delete(uc.feeds, chatID)
	} else {
		feed = nil
	}
	uc.feedMu.Unlock()

	if feed != nil {
		feed.sub.Stop()
		<-feed.done
	}
}

func (uc *ChatUseCase) runFeed(chatID string, feed *chatFeed) {
	defer close(feed.done)
	defer func() {
		// A feed that ended on its own (dropped subscription) must not
		// shadow a future OpenChat.
		uc.feedMu.Lock()
		if uc.feeds[chatID] == feed {
			delete(uc.feeds, chatID)
		}
		uc.feedMu.Unlock()
	}()

	for batch := range feed.sub.Batches() {
		feed.reconciler.Ingest(batch)

		view, err := json.Marshal(map[string]interface{}{
			"type":     "chat_view",
			"chat_id":  chatID,
			"sections": feed.reconciler.Sections(time.Now()),
		})
		if err != nil {
			logger.Error("runFeed Error: failed to encode view for chat %s: %v", chatID, err)
			continue
		}

		uc.wsManager.SendToChatRoom(chatID, view, "")
	}
}
