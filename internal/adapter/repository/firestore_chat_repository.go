package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

const subscriptionWindow = 50

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) messageRef(chatID, messageID string) *firestore.DocumentRef {
	return r.client.Collection("chats").Doc(chatID).Collection("messages").Doc(messageID)
}

func (r *firestoreChatRepository) metadataRef(userID, chatID string) *firestore.DocumentRef {
	return r.client.Collection("user_chat_metadata").Doc(userID).Collection("chats").Doc(chatID)
}

// wrapErr maps transport failures to retryable errors so the shared retry
// policy can distinguish them from permanent ones.
func wrapErr(message string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return errors.Unavailable(message, err)
	}
	return errors.Internal(message, err)
}

func (r *firestoreChatRepository) EnsureMetadata(ctx context.Context, userID, chatID string, participants []string, otherUser *entity.UserRef) error {
	docRef := r.metadataRef(userID, chatID)

	_, err := docRef.Get(ctx)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return wrapErr("Failed to check chat metadata", err)
	}

	// Merge set, never a blind create: a concurrent upsert from the other
	// side of the conversation must not lose an existing counter.
	initial := map[string]interface{}{
		"chatId":       chatID,
		"unreadCount":  0,
		"lastRead":     time.Now(),
		"participants": participants,
	}
	if otherUser != nil {
		initial["otherUser"] = map[string]interface{}{
			"id":          otherUser.ID,
			"displayName": otherUser.DisplayName,
			"photoURL":    otherUser.PhotoURL,
		}
	}

	if _, err := docRef.Set(ctx, initial, firestore.MergeAll); err != nil {
		return wrapErr("Failed to create chat metadata", err)
	}

	return nil
}

func (r *firestoreChatRepository) AppendMessage(ctx context.Context, message *entity.Message, recipientID string) error {
	if message.ID == "" {
		return errors.BadRequest("Message id must be generated before the append", nil)
	}

	msgRef := r.messageRef(message.ChatID, message.ID)
	senderRef := r.metadataRef(message.SenderID, message.ChatID)
	recipientRef := r.metadataRef(recipientID, message.ChatID)

	// Message doc and both metadata records commit together or not at all.
	// Re-running the transaction re-sets the same document id, so a retried
	// send never creates a duplicate message.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(msgRef, message); err != nil {
			return err
		}

		if err := tx.Set(senderRef, map[string]interface{}{
			"lastMessage":     message.Text,
			"lastMessageTime": message.Timestamp,
			"lastRead":        message.Timestamp,
		}, firestore.MergeAll); err != nil {
			return err
		}

		return tx.Update(recipientRef, []firestore.Update{
			{Path: "lastMessage", Value: message.Text},
			{Path: "lastMessageTime", Value: message.Timestamp},
			{Path: "unreadCount", Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		return wrapErr("Failed to commit message", err)
	}

	return nil
}

func (r *firestoreChatRepository) MarkChatRead(ctx context.Context, userID, chatID string) error {
	metaRef := r.metadataRef(userID, chatID)
	pending := r.client.Collection("chats").Doc(chatID).Collection("messages").
		Where("status", "==", entity.MessageStatusSent)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Reads before writes. The sender filter is applied in-memory to
		// avoid an inequality index on senderId.
		iter := tx.Documents(pending)
		var toFlip []*firestore.DocumentRef
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}

			var message entity.Message
			if err := doc.DataTo(&message); err != nil {
				logger.Warn("MarkChatRead: skipping unparsable message %s in chat %s: %v", doc.Ref.ID, chatID, err)
				continue
			}
			if message.SenderID != userID {
				toFlip = append(toFlip, doc.Ref)
			}
		}

		for _, ref := range toFlip {
			if err := tx.Update(ref, []firestore.Update{
				{Path: "status", Value: entity.MessageStatusRead},
			}); err != nil {
				return err
			}
		}

		return tx.Set(metaRef, map[string]interface{}{
			"unreadCount": 0,
			"lastRead":    time.Now(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return wrapErr("Failed to mark chat as read", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetMessagesPage(ctx context.Context, chatID string, cursor *repository.MessageCursor, pageSize int) (*repository.MessagePage, error) {
	query := r.client.Collection("chats").Doc(chatID).Collection("messages").
		OrderBy("timestamp", firestore.Desc).
		OrderBy("id", firestore.Desc)

	if cursor != nil {
		query = query.StartAfter(cursor.Timestamp, cursor.ID)
	}

	iter := query.Limit(pageSize).Documents(ctx)
	defer iter.Stop()

	var newestFirst []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapErr("Failed to fetch message page", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Warn("GetMessagesPage: skipping unparsable message %s in chat %s: %v", doc.Ref.ID, chatID, err)
			continue
		}
		newestFirst = append(newestFirst, &message)
	}

	// Reverse into chronological order for display; the cursor points at
	// the oldest item returned.
	page := &repository.MessagePage{
		Messages: make([]*entity.Message, 0, len(newestFirst)),
		HasMore:  len(newestFirst) == pageSize,
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, newestFirst[i])
	}
	if len(page.Messages) > 0 {
		oldest := page.Messages[0]
		page.Cursor = &repository.MessageCursor{Timestamp: oldest.Timestamp, ID: oldest.ID}
	}

	return page, nil
}

func (r *firestoreChatRepository) GetMetadata(ctx context.Context, userID, chatID string) (*entity.ChatMetadata, error) {
	doc, err := r.metadataRef(userID, chatID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Chat metadata", err)
		}
		return nil, wrapErr("Failed to get chat metadata", err)
	}

	var metadata entity.ChatMetadata
	if err := doc.DataTo(&metadata); err != nil {
		return nil, errors.Internal("Failed to parse chat metadata", err)
	}
	if metadata.ChatID == "" {
		metadata.ChatID = doc.Ref.ID
	}

	return &metadata, nil
}

func (r *firestoreChatRepository) ListChatMetadata(ctx context.Context, userID string) ([]*entity.ChatMetadata, error) {
	iter := r.client.Collection("user_chat_metadata").Doc(userID).Collection("chats").Documents(ctx)
	defer iter.Stop()

	var records []*entity.ChatMetadata
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapErr("Failed to list chat metadata", err)
		}

		var metadata entity.ChatMetadata
		if err := doc.DataTo(&metadata); err != nil {
			logger.Warn("ListChatMetadata: skipping unparsable record %s for user %s: %v", doc.Ref.ID, userID, err)
			continue
		}
		if metadata.ChatID == "" {
			metadata.ChatID = doc.Ref.ID
		}
		records = append(records, &metadata)
	}

	return records, nil
}

type firestoreSubscription struct {
	cancel  context.CancelFunc
	batches chan []map[string]interface{}
	done    chan struct{}
}

func (s *firestoreSubscription) Batches() <-chan []map[string]interface{} {
	return s.batches
}

// Stop releases the snapshot listener and blocks until the pump goroutine
// has exited, so no batch is delivered after it returns.
func (s *firestoreSubscription) Stop() {
	s.cancel()
	<-s.done
}

func (r *firestoreChatRepository) SubscribeMessages(ctx context.Context, chatID string) (repository.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	snaps := r.client.Collection("chats").Doc(chatID).Collection("messages").
		OrderBy("timestamp", firestore.Desc).
		Limit(subscriptionWindow).
		Snapshots(ctx)

	sub := &firestoreSubscription{
		cancel:  cancel,
		batches: make(chan []map[string]interface{}, 8),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.batches)
		defer snaps.Stop()

		for {
			snap, err := snaps.Next()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("SubscribeMessages: snapshot stream for chat %s ended: %v", chatID, err)
				}
				return
			}

			var batch []map[string]interface{}
			for _, change := range snap.Changes {
				if change.Kind == firestore.DocumentAdded || change.Kind == firestore.DocumentModified {
					batch = append(batch, change.Doc.Data())
				}
			}
			if len(batch) == 0 {
				continue
			}

			select {
			case sub.batches <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}
