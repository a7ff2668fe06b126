package database

import (
	"errors"

	"github.com/threadline/threadline/internal/status"
	"gorm.io/gorm"
)

// ThreadsByIssueID returns every thread linked to the given GitHub issue id.
// Platforms may fan one issue out to several threads, so this is a list.
func ThreadsByIssueID(db *gorm.DB, issueID string) ([]Thread, error) {
	var threads []Thread
	err := db.Where("external_issue_id = ?", issueID).Find(&threads).Error
	return threads, err
}

// ThreadsByPRID returns every thread linked to the given GitHub pull request id.
func ThreadsByPRID(db *gorm.DB, prID string) ([]Thread, error) {
	var threads []Thread
	err := db.Where("external_pr_id = ?", prID).Find(&threads).Error
	return threads, err
}

// ThreadByExternalID resolves a thread by its platform-native id and origin,
// e.g. a Slack thread timestamp. Returns nil without error when no thread
// matches, since an unknown reference is a silent no-op for callers.
func ThreadByExternalID(db *gorm.DB, orgID, externalID string, origin Platform) (*Thread, error) {
	var thread Thread
	err := db.Where(
		"organization_id = ? AND external_id = ? AND external_origin = ?",
		orgID, externalID, origin,
	).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// CreateThread inserts a new thread.
func CreateThread(db *gorm.DB, thread *Thread) error {
	return db.Create(thread).Error
}

// SetThreadStatus updates a thread's status in place.
func SetThreadStatus(db *gorm.DB, threadID uint, s status.Status) error {
	return db.Model(&Thread{}).Where("id = ?", threadID).Update("status", s).Error
}

// ThreadByID loads a thread by primary key.
func ThreadByID(db *gorm.DB, id uint) (*Thread, error) {
	var thread Thread
	if err := db.First(&thread, id).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}
