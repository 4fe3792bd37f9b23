package entity

import (
	"strings"

	"chatsync/pkg/errors"
)

const chatIDSeparator = "_"

// ChatID derives the deterministic identifier for a two-party conversation.
// Symmetric: ChatID(a, b) == ChatID(b, a). Stable across restarts.
func ChatID(userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", errors.BadRequest("Participant ids must not be empty", nil)
	}
	if strings.Contains(userA, chatIDSeparator) || strings.Contains(userB, chatIDSeparator) {
		return "", errors.BadRequest("Participant ids must not contain '"+chatIDSeparator+"'", nil)
	}

	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + chatIDSeparator + userB, nil
}

// ChatParticipants splits a chat id back into its two participant ids.
func ChatParticipants(chatID string) (string, string, error) {
	parts := strings.SplitN(chatID, chatIDSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.BadRequest("Malformed chat id", nil)
	}
	return parts[0], parts[1], nil
}

// ChatCounterpart returns the participant of chatID that is not userID.
func ChatCounterpart(chatID, userID string) (string, error) {
	a, b, err := ChatParticipants(chatID)
	if err != nil {
		return "", err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", errors.Forbidden("User is not a participant in this chat", nil)
}
