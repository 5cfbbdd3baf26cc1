package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collab-backend/internal/model"
)

const defaultHistoryLimit = 100

// Archiver stores the durable chat record. It sits off the realtime
// path: the authority writes to it best-effort after commit, and the
// history API reads from it.
type Archiver struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Archiver {
	return &Archiver{db: db}
}

// SaveMessage writes one committed message. A replayed message id is
// silently ignored; the realtime dedup already decided it once.
func (a *Archiver) SaveMessage(ctx context.Context, roomKey string, msg model.ChatMessage) error {
	entry := model.ChatArchiveEntry{
		RoomKey:    roomKey,
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Kind:       string(msg.Kind),
		Text:       msg.Text,
		SentAt:     time.UnixMilli(msg.CreatedAt),
	}
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("archive message %s: %w", msg.ID, err)
	}
	return nil
}

// History returns the most recent entries for a room in chronological
// order. limit <= 0 falls back to the default page size.
func (a *Archiver) History(ctx context.Context, roomKey string, limit int) ([]model.ChatArchiveEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultHistoryLimit
	}
	var entries []model.ChatArchiveEntry
	err := a.db.WithContext(ctx).
		Where("room_key = ?", roomKey).
		Order("sent_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", roomKey, err)
	}
	// Reverse to chronological order for the client.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Message looks up one archived entry by message id.
func (a *Archiver) Message(ctx context.Context, messageID string) (*model.ChatArchiveEntry, error) {
	var entry model.ChatArchiveEntry
	err := a.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	return &entry, nil
}
