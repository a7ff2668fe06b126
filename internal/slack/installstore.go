package slack

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/threadline/threadline/internal/database"
	"gorm.io/gorm"
)

// ErrInstallationNotFound is returned by Fetch when no integration holds an
// installation for the requested team.
var ErrInstallationNotFound = errors.New("installation not found")

// Installation is the credential/grant object issued by Slack when a
// workspace installs the app.
type Installation struct {
	TeamID       string `json:"teamId"`
	TeamName     string `json:"teamName,omitempty"`
	EnterpriseID string `json:"enterpriseId,omitempty"`
	BotToken     string `json:"botToken"`
	BotUserID    string `json:"botUserId,omitempty"`
	AppID        string `json:"appId,omitempty"`
	Scopes       string `json:"scopes,omitempty"`
}

// InstallationStore is the installation-store contract the OAuth flow works
// against.
type InstallationStore interface {
	Store(installation *Installation) error
	Fetch(teamID string) (*Installation, error)
	Delete(teamID string) error
}

// ConfigInstallationStore persists installations inside the integration
// config blob. Every operation keys off the teamId embedded in the config
// JSON rather than the row's primary id: the row can exist disabled, holding
// only a CSRF token, before the platform round-trip completes.
type ConfigInstallationStore struct {
	db *gorm.DB
}

// NewConfigInstallationStore creates a store over the given database.
func NewConfigInstallationStore(db *gorm.DB) *ConfigInstallationStore {
	return &ConfigInstallationStore{db: db}
}

// Store merges the installation object into the config of the
// enabled-or-pending integration row for the installation's team.
func (s *ConfigInstallationStore) Store(installation *Installation) error {
	integration, err := database.IntegrationByTeamID(s.db, database.PlatformSlack, installation.TeamID, false)
	if err != nil {
		return fmt.Errorf("store installation for team %s: %w", installation.TeamID, err)
	}

	raw, err := installationToMap(installation)
	if err != nil {
		return err
	}

	if integration.Config == nil {
		integration.Config = make(database.JSONB)
	}
	integration.Config["teamId"] = installation.TeamID
	integration.Config["installation"] = raw
	return database.SaveIntegration(s.db, integration)
}

// Fetch returns the stored installation for a team, failing with
// ErrInstallationNotFound when either the integration or its installation
// data is absent.
func (s *ConfigInstallationStore) Fetch(teamID string) (*Installation, error) {
	integration, err := database.IntegrationByTeamID(s.db, database.PlatformSlack, teamID, false)
	if errors.Is(err, database.ErrIntegrationNotFound) {
		return nil, ErrInstallationNotFound
	}
	if err != nil {
		return nil, err
	}

	raw, ok := integration.Config["installation"].(map[string]interface{})
	if !ok {
		return nil, ErrInstallationNotFound
	}
	return installationFromMap(raw)
}

// Delete removes the installation object from the integration config. A
// missing integration or installation is a no-op.
func (s *ConfigInstallationStore) Delete(teamID string) error {
	integration, err := database.IntegrationByTeamID(s.db, database.PlatformSlack, teamID, false)
	if errors.Is(err, database.ErrIntegrationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, ok := integration.Config["installation"]; !ok {
		return nil
	}
	delete(integration.Config, "installation")
	return database.SaveIntegration(s.db, integration)
}

func installationToMap(installation *Installation) (map[string]interface{}, error) {
	raw, err := json.Marshal(installation)
	if err != nil {
		return nil, fmt.Errorf("encode installation: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode installation: %w", err)
	}
	return m, nil
}

func installationFromMap(m map[string]interface{}) (*Installation, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode installation config: %w", err)
	}
	var installation Installation
	if err := json.Unmarshal(raw, &installation); err != nil {
		return nil, fmt.Errorf("decode installation config: %w", err)
	}
	return &installation, nil
}
