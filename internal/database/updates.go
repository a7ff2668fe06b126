package database

import (
	"fmt"

	"gorm.io/gorm"
)

// AppendUpdate inserts an audit update row.
func AppendUpdate(db *gorm.DB, update *Update) error {
	return db.Create(update).Error
}

// UpdatesByThread returns a thread's updates in insertion order.
func UpdatesByThread(db *gorm.DB, threadID uint) ([]Update, error) {
	var updates []Update
	err := db.Where("thread_id = ?", threadID).Order("id asc").Find(&updates).Error
	return updates, err
}

// UnreplicatedUpdates returns updates belonging to externally-linked threads
// that carry no replicated marker for the given platform. The replicated blob
// is filtered Go-side so the query stays portable across postgres and the
// sqlite test driver.
func UnreplicatedUpdates(db *gorm.DB, platform Platform) ([]Update, error) {
	var updates []Update
	err := db.
		Joins("JOIN threads ON threads.id = updates.thread_id").
		Where("threads.external_origin = ? AND threads.external_id IS NOT NULL", platform).
		Where("threads.deleted_at IS NULL").
		Preload("Thread").
		Order("updates.id asc").
		Find(&updates).Error
	if err != nil {
		return nil, err
	}

	pending := updates[:0]
	for _, u := range updates {
		if !u.ReplicatedTo(platform) {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

// MarkUpdateReplicated sets the per-platform acknowledgement marker on an
// update. Runs in a transaction so concurrent markers for different platforms
// do not clobber each other.
func MarkUpdateReplicated(db *gorm.DB, updateID uint, platform Platform, ack interface{}) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var update Update
		if err := tx.First(&update, updateID).Error; err != nil {
			return fmt.Errorf("load update %d: %w", updateID, err)
		}
		if update.Replicated == nil {
			update.Replicated = make(JSONB)
		}
		update.Replicated[string(platform)] = ack
		return tx.Model(&update).Update("replicated", update.Replicated).Error
	})
}
