package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain/entity"
)

func entry(id, senderID, text string, ts time.Time, status string) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"senderId":  senderID,
		"text":      text,
		"timestamp": ts,
		"status":    status,
	}
}

func TestIngestDeduplicatesByID(t *testing.T) {
	r := NewReconciler(time.UTC)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	m1 := entry("m1", "u1", "hello", base, "sent")
	m2 := entry("m2", "u2", "hi", base.Add(time.Minute), "sent")

	r.Ingest([]map[string]interface{}{m1, m1, m2})

	messages := r.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
	assert.Zero(t, r.Dropped())
}

func TestIngestLastWriteWinsOnStatusUpdate(t *testing.T) {
	r := NewReconciler(time.UTC)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	r.Ingest([]map[string]interface{}{entry("m1", "u1", "hello", base, "sent")})
	r.Ingest([]map[string]interface{}{entry("m1", "u1", "hello", base, "read")})

	messages := r.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, entity.MessageStatusRead, messages[0].Status)
}

func TestIngestNeverRegressesReadToSent(t *testing.T) {
	r := NewReconciler(time.UTC)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	r.Ingest([]map[string]interface{}{entry("m1", "u1", "hello", base, "read")})
	// A replayed copy of the original sent message arrives late.
	r.Ingest([]map[string]interface{}{entry("m1", "u1", "hello", base, "sent")})

	messages := r.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, entity.MessageStatusRead, messages[0].Status)
}

func TestIngestDropsInvalidEntriesWithoutFailingTheBatch(t *testing.T) {
	r := NewReconciler(time.UTC)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	missingSender := map[string]interface{}{
		"id":        "bad",
		"text":      "who sent this",
		"timestamp": base,
		"status":    "sent",
	}
	badStatus := entry("worse", "u1", "hm", base, "delivered")

	r.Ingest([]map[string]interface{}{
		missingSender,
		entry("ok", "u1", "fine", base, "sent"),
		badStatus,
	})

	messages := r.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "ok", messages[0].ID)
	assert.Equal(t, 2, r.Dropped())
}

func TestMessagesSortedByTimestampThenID(t *testing.T) {
	r := NewReconciler(time.UTC)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Same timestamp: id is the tie-break.
	r.Ingest([]map[string]interface{}{
		entry("b", "u1", "second", base, "sent"),
		entry("a", "u1", "first", base, "sent"),
		entry("c", "u2", "later", base.Add(-time.Hour), "sent"),
	})

	messages := r.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{messages[0].ID, messages[1].ID, messages[2].ID})
}

func TestIngestIsIdempotentAcrossOverlappingInputs(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := []map[string]interface{}{
		entry("m1", "u1", "hello", base, "sent"),
		entry("m2", "u2", "hi", base.Add(time.Minute), "read"),
	}

	once := NewReconciler(time.UTC)
	once.Ingest(batch)

	twice := NewReconciler(time.UTC)
	twice.Ingest(batch)
	twice.Ingest(batch)

	assert.Equal(t, once.Messages(), twice.Messages())
}

func TestIngestNormalizesVariantFieldNames(t *testing.T) {
	r := NewReconciler(time.UTC)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	r.Ingest([]map[string]interface{}{{
		"id":        "m1",
		"sender_id": "u1",
		"content":   "legacy shape",
		"createdAt": base.Format(time.RFC3339),
		"status":    "sent",
		"attachment": map[string]interface{}{
			"url":      "https://example.com/f",
			"fileName": "f.pdf",
			"size":     float64(123),
			"type":     "document",
		},
	}})

	messages := r.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "legacy shape", messages[0].Text)
	assert.Equal(t, "u1", messages[0].SenderID)
	require.NotNil(t, messages[0].Attachment)
	assert.Equal(t, "f.pdf", messages[0].Attachment.Name)
	assert.Equal(t, int64(123), messages[0].Attachment.Size)
}

func TestSectionsGroupByCalendarDay(t *testing.T) {
	r := NewReconciler(time.UTC)
	now := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)

	r.Ingest([]map[string]interface{}{
		entry("m1", "u1", "old", time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), "read"),
		entry("m2", "u1", "yesterday", time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC), "read"),
		entry("m3", "u2", "today early", time.Date(2024, 3, 3, 0, 1, 0, 0, time.UTC), "sent"),
		entry("m4", "u2", "today late", time.Date(2024, 3, 3, 11, 0, 0, 0, time.UTC), "sent"),
	})

	sections := r.Sections(now)
	require.Len(t, sections, 3)

	assert.Equal(t, "February 1, 2024", sections[0].Label)
	assert.Equal(t, "Yesterday", sections[1].Label)
	assert.Equal(t, "Today", sections[2].Label)
	assert.Len(t, sections[2].Messages, 2)
	assert.Equal(t, "m3", sections[2].Messages[0].ID)

	// Each row carries its in-bubble time label in the viewer's zone.
	assert.Equal(t, "11:59 PM", sections[1].Messages[0].TimeLabel)
	assert.Equal(t, "12:01 AM", sections[2].Messages[0].TimeLabel)
	assert.Equal(t, "11:00 AM", sections[2].Messages[1].TimeLabel)
}

func TestFormatMessageDateWeekday(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC) // a Friday

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) // the Tuesday before
	assert.Equal(t, "Tuesday", FormatMessageDate(day, now))

	old := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "February 20, 2024", FormatMessageDate(old, now))
}
