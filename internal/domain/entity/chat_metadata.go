package entity

import "time"

// ChatMetadata is the per-user, per-chat denormalized summary used for inbox
// rendering without scanning the message log. Two records exist per chat,
// one per participant; each stores the other party's display info.
type ChatMetadata struct {
	ChatID          string    `json:"chat_id" firestore:"chatId"`
	UnreadCount     int       `json:"unread_count" firestore:"unreadCount"`
	LastRead        time.Time `json:"last_read" firestore:"lastRead"`
	LastMessage     string    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageTime time.Time `json:"last_message_time" firestore:"lastMessageTime"`
	Participants    []string  `json:"participants" firestore:"participants"`
	OtherUser       *UserRef  `json:"other_user,omitempty" firestore:"otherUser,omitempty"`
}

// UserRef is the denormalized counterpart display info embedded in metadata.
type UserRef struct {
	ID          string `json:"id" firestore:"id"`
	DisplayName string `json:"display_name" firestore:"displayName"`
	PhotoURL    string `json:"photo_url,omitempty" firestore:"photoURL,omitempty"`
}

// CounterpartID resolves the other participant's id. Preference order:
// denormalized OtherUser, then the participant pair, then the chat id
// itself. All paths yield the same id for the same chat.
func (m *ChatMetadata) CounterpartID(userID string) (string, error) {
	if m.OtherUser != nil && m.OtherUser.ID != "" {
		return m.OtherUser.ID, nil
	}
	for _, p := range m.Participants {
		if p != userID && p != "" {
			return p, nil
		}
	}
	return ChatCounterpart(m.ChatID, userID)
}
