package database

import (
	"errors"

	"gorm.io/gorm"
)

// ErrIntegrationNotFound is returned when no integration row matches a lookup
// that the caller expected to succeed.
var ErrIntegrationNotFound = errors.New("integration not found")

// EnabledIntegration returns the single enabled integration for an
// organization and platform, or ErrIntegrationNotFound.
func EnabledIntegration(db *gorm.DB, orgID string, platform Platform) (*Integration, error) {
	var integration Integration
	err := db.Where(
		"organization_id = ? AND type = ? AND enabled = ?",
		orgID, platform, true,
	).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntegrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// IntegrationsByType returns all integrations for a platform, enabled or not.
func IntegrationsByType(db *gorm.DB, platform Platform) ([]Integration, error) {
	var integrations []Integration
	err := db.Where("type = ?", platform).Find(&integrations).Error
	return integrations, err
}

// IntegrationByTeamID locates an integration by the teamId embedded in its
// config JSON. Lookups key off the config rather than the row id because the
// row may be created disabled (holding only a CSRF token) before the platform
// OAuth round-trip completes. When onlyEnabled is false, pending rows match
// too.
func IntegrationByTeamID(db *gorm.DB, platform Platform, teamID string, onlyEnabled bool) (*Integration, error) {
	if teamID == "" {
		return nil, ErrIntegrationNotFound
	}
	integrations, err := IntegrationsByType(db, platform)
	if err != nil {
		return nil, err
	}
	for i := range integrations {
		integration := &integrations[i]
		if onlyEnabled && !integration.Enabled {
			continue
		}
		if integration.TeamID() == teamID {
			return integration, nil
		}
	}
	return nil, ErrIntegrationNotFound
}

// IntegrationByOrg returns the integration row for an organization and
// platform regardless of enabled state, or nil when absent.
func IntegrationByOrg(db *gorm.DB, orgID string, platform Platform) (*Integration, error) {
	var integration Integration
	err := db.Where("organization_id = ? AND type = ?", orgID, platform).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// SaveIntegration persists config and enabled-state changes on a row.
func SaveIntegration(db *gorm.DB, integration *Integration) error {
	return db.Save(integration).Error
}

// CreateIntegration inserts a new integration row.
func CreateIntegration(db *gorm.DB, integration *Integration) error {
	return db.Create(integration).Error
}
