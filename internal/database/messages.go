package database

import (
	"errors"

	"gorm.io/gorm"
)

// CreateMessage inserts a new message.
func CreateMessage(db *gorm.DB, msg *Message) error {
	return db.Create(msg).Error
}

// MessageByExternalID resolves a message by its platform-native id within a
// thread. Returns nil without error when absent, so inbound redeliveries can
// be detected and skipped.
func MessageByExternalID(db *gorm.DB, threadID uint, externalID string) (*Message, error) {
	var msg Message
	err := db.Where("thread_id = ? AND external_message_id = ?", threadID, externalID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UnsentMessages returns messages that still need relaying: no external
// message id yet, owned by a thread linked to an external platform. The
// thread is preloaded for channel resolution.
func UnsentMessages(db *gorm.DB) ([]Message, error) {
	var msgs []Message
	err := db.
		Joins("JOIN threads ON threads.id = messages.thread_id").
		Where("messages.external_message_id IS NULL").
		Where("threads.external_origin IS NOT NULL AND threads.external_id IS NOT NULL").
		Where("threads.deleted_at IS NULL").
		Preload("Thread").
		Find(&msgs).Error
	return msgs, err
}

// SetMessageExternalID records the platform message id after a successful
// relay. The field is write-once: the guard clause makes concurrent or
// repeated attempts a no-op, and the return value reports whether this call
// performed the write.
func SetMessageExternalID(db *gorm.DB, messageID uint, externalID string) (bool, error) {
	res := db.Model(&Message{}).
		Where("id = ? AND external_message_id IS NULL", messageID).
		Update("external_message_id", externalID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
