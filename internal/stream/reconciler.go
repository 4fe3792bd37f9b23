package stream

import (
	"fmt"
	"sort"
	"time"

	"chatsync/internal/domain/entity"
	"chatsync/pkg/logger"
)

// Reconciler folds a live, possibly-duplicated, possibly-reordered feed of
// message entries into a stable chronological view. All methods are
// synchronous and CPU-only; re-ingesting overlapping batches converges on
// the same output.
type Reconciler struct {
	loc     *time.Location
	byID    map[string]*entity.Message
	dropped int
}

func NewReconciler(loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{
		loc:  loc,
		byID: make(map[string]*entity.Message),
	}
}

// Ingest validates and folds one batch. Invalid entries are dropped and
// counted, never fatal. Duplicates resolve last-write-wins by id, except
// that a read status never regresses to sent.
func (r *Reconciler) Ingest(batch []map[string]interface{}) {
	for _, raw := range batch {
		message, err := normalizeEntry(raw)
		if err != nil {
			r.dropped++
			logger.Warn("stream: dropping invalid entry: %v", err)
			continue
		}

		if existing, ok := r.byID[message.ID]; ok {
			if existing.Status == entity.MessageStatusRead && message.Status == entity.MessageStatusSent {
				message.Status = entity.MessageStatusRead
			}
		}
		r.byID[message.ID] = message
	}
}

// Dropped reports how many entries failed validation since construction.
func (r *Reconciler) Dropped() int {
	return r.dropped
}

// Messages returns the deduplicated set sorted ascending by (timestamp, id).
func (r *Reconciler) Messages() []*entity.Message {
	messages := make([]*entity.Message, 0, len(r.byID))
	for _, m := range r.byID {
		messages = append(messages, m)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
	return messages
}

// DaySection is one calendar-day bucket of the reconciled view, in the
// viewer's local time.
type DaySection struct {
	Label    string        `json:"label"`
	Date     time.Time     `json:"date"`
	Messages []MessageView `json:"messages"`
}

// MessageView is one rendered row: the message plus its in-bubble time
// label in the viewer's zone.
type MessageView struct {
	*entity.Message
	TimeLabel string `json:"time_label"`
}

// Sections groups the reconciled messages into date buckets for display.
func (r *Reconciler) Sections(now time.Time) []DaySection {
	var sections []DaySection
	var current *DaySection

	for _, m := range r.Messages() {
		day := dateOnly(m.Timestamp.In(r.loc))
		if current == nil || !current.Date.Equal(day) {
			sections = append(sections, DaySection{
				Label: FormatMessageDate(day, now.In(r.loc)),
				Date:  day,
			})
			current = &sections[len(sections)-1]
		}
		current.Messages = append(current.Messages, MessageView{
			Message:   m,
			TimeLabel: FormatMessageTime(m.Timestamp, r.loc),
		})
	}

	return sections
}

// normalizeEntry is the single compatibility boundary for the variant field
// names the prototype iterations used (text/content, name/fileName, ...).
// Everything past this point sees only the canonical schema.
func normalizeEntry(raw map[string]interface{}) (*entity.Message, error) {
	id := stringField(raw, "id")
	text := stringField(raw, "text", "content")
	senderID := stringField(raw, "senderId", "sender_id")

	if id == "" || text == "" || senderID == "" {
		return nil, fmt.Errorf("entry missing id, text or senderId")
	}

	timestamp, ok := timeField(raw, "timestamp", "createdAt", "created_at")
	if !ok {
		return nil, fmt.Errorf("entry %s has no valid timestamp", id)
	}

	status := stringField(raw, "status")
	if status != entity.MessageStatusSent && status != entity.MessageStatusRead {
		return nil, fmt.Errorf("entry %s has unknown status %q", id, status)
	}

	message := &entity.Message{
		ID:        id,
		ChatID:    stringField(raw, "chatId", "chat_id"),
		SenderID:  senderID,
		Text:      text,
		Timestamp: timestamp,
		Status:    status,
	}

	if att, ok := raw["attachment"].(map[string]interface{}); ok {
		message.Attachment = &entity.Attachment{
			URL:  stringField(att, "url"),
			Name: stringField(att, "name", "fileName", "file_name"),
			Size: intField(att, "size"),
			Type: stringField(att, "type"),
		}
	}

	return message, nil
}

func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func intField(raw map[string]interface{}, key string) int64 {
	switch v := raw[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func timeField(raw map[string]interface{}, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case time.Time:
			if !v.IsZero() {
				return v, true
			}
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
