package database

import (
	"errors"

	"gorm.io/gorm"
)

// GetOrCreateAuthor resolves the author for (organization, platform user id),
// inserting one if absent. The unique index on (organization_id, meta_id)
// makes concurrent inserts safe: the loser of the race re-reads the winner's
// row instead of waiting on a fixed delay.
func GetOrCreateAuthor(db *gorm.DB, orgID, metaID, name string) (*Author, error) {
	var author Author
	err := db.Where("organization_id = ? AND meta_id = ?", orgID, metaID).First(&author).Error
	if err == nil {
		return &author, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	author = Author{
		OrganizationID: orgID,
		MetaID:         &metaID,
		Name:           name,
	}
	if createErr := db.Create(&author).Error; createErr != nil {
		// Lost the insert race; the winner is queryable now.
		var existing Author
		if err := db.Where("organization_id = ? AND meta_id = ?", orgID, metaID).First(&existing).Error; err == nil {
			return &existing, nil
		}
		return nil, createErr
	}
	return &author, nil
}

// AuthorByID loads an author by primary key.
func AuthorByID(db *gorm.DB, id uint) (*Author, error) {
	var author Author
	if err := db.First(&author, id).Error; err != nil {
		return nil, err
	}
	return &author, nil
}
