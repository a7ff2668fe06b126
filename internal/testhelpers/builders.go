// Package testhelpers provides additional data builders for testing
package testhelpers

import (
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/status"
)

// ========================================
// Thread Builder
// ========================================

// ThreadBuilder builds Thread instances for testing
type ThreadBuilder struct {
	thread database.Thread
}

// NewThreadBuilder creates a new thread builder with defaults
func NewThreadBuilder() *ThreadBuilder {
	return &ThreadBuilder{
		thread: database.Thread{
			OrganizationID: "org-1",
			Name:           "Test thread",
			Status:         status.Open,
		},
	}
}

// WithOrg sets the organization id
func (b *ThreadBuilder) WithOrg(orgID string) *ThreadBuilder {
	b.thread.OrganizationID = orgID
	return b
}

// WithName sets the thread name
func (b *ThreadBuilder) WithName(name string) *ThreadBuilder {
	b.thread.Name = name
	return b
}

// WithStatus sets the thread status
func (b *ThreadBuilder) WithStatus(s status.Status) *ThreadBuilder {
	b.thread.Status = s
	return b
}

// WithIssue links the thread to a GitHub issue id
func (b *ThreadBuilder) WithIssue(issueID string) *ThreadBuilder {
	b.thread.ExternalIssueID = StrPtr(issueID)
	return b
}

// WithPR links the thread to a GitHub pull request id
func (b *ThreadBuilder) WithPR(prID string) *ThreadBuilder {
	b.thread.ExternalPRID = StrPtr(prID)
	return b
}

// WithSlackLink links the thread to a Slack channel and thread timestamp
func (b *ThreadBuilder) WithSlackLink(channelID, timestamp string) *ThreadBuilder {
	b.thread.ExternalID = StrPtr(timestamp)
	b.thread.ExternalOrigin = PlatformPtr(database.PlatformSlack)
	b.thread.ExternalMetadata = database.JSONB{"channelId": channelID}
	return b
}

// WithExternalLink links the thread to an arbitrary platform
func (b *ThreadBuilder) WithExternalLink(origin database.Platform, externalID string, metadata database.JSONB) *ThreadBuilder {
	b.thread.ExternalID = StrPtr(externalID)
	b.thread.ExternalOrigin = PlatformPtr(origin)
	b.thread.ExternalMetadata = metadata
	return b
}

// Build returns the constructed thread
func (b *ThreadBuilder) Build() database.Thread {
	return b.thread
}

// ========================================
// Integration Builder
// ========================================

// IntegrationBuilder builds Integration instances for testing
type IntegrationBuilder struct {
	integration database.Integration
}

// NewIntegrationBuilder creates a new integration builder with defaults
func NewIntegrationBuilder() *IntegrationBuilder {
	return &IntegrationBuilder{
		integration: database.Integration{
			OrganizationID: "org-1",
			Type:           database.PlatformSlack,
			Enabled:        true,
			Config:         database.JSONB{},
		},
	}
}

// WithOrg sets the organization id
func (b *IntegrationBuilder) WithOrg(orgID string) *IntegrationBuilder {
	b.integration.OrganizationID = orgID
	return b
}

// WithType sets the platform type
func (b *IntegrationBuilder) WithType(p database.Platform) *IntegrationBuilder {
	b.integration.Type = p
	return b
}

// Disabled marks the integration as disabled
func (b *IntegrationBuilder) Disabled() *IntegrationBuilder {
	b.integration.Enabled = false
	return b
}

// WithTeamID sets the config teamId
func (b *IntegrationBuilder) WithTeamID(teamID string) *IntegrationBuilder {
	b.integration.Config["teamId"] = teamID
	return b
}

// WithSelectedChannels sets the config selectedChannels
func (b *IntegrationBuilder) WithSelectedChannels(channels ...string) *IntegrationBuilder {
	raw := make([]interface{}, 0, len(channels))
	for _, c := range channels {
		raw = append(raw, c)
	}
	b.integration.Config["selectedChannels"] = raw
	return b
}

// WithConfig sets an arbitrary config key
func (b *IntegrationBuilder) WithConfig(key string, value interface{}) *IntegrationBuilder {
	b.integration.Config[key] = value
	return b
}

// Build returns the constructed integration
func (b *IntegrationBuilder) Build() database.Integration {
	return b.integration
}
