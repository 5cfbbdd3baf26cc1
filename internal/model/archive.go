package model

import "time"

// ChatArchiveEntry is the durable copy of a committed chat append,
// written best-effort by the room authority. The realtime path never
// reads it back; it feeds the history API only.
type ChatArchiveEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomKey    string    `gorm:"type:varchar(255);not null;index:idx_archive_room_created" json:"room_key"`
	MessageID  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"message_id"`
	SenderID   string    `gorm:"type:varchar(64);not null" json:"sender_id"`
	SenderName string    `gorm:"type:varchar(100)" json:"sender_name"`
	Kind       string    `gorm:"type:varchar(20);not null" json:"kind"`
	Text       string    `gorm:"type:text" json:"text"`
	SentAt     time.Time `gorm:"not null" json:"sent_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_archive_room_created" json:"created_at"`
}

func (ChatArchiveEntry) TableName() string {
	return "chat_archive_entries"
}
