// Package identity maps external entity references (issue ids, PR ids,
// channel/thread timestamps, team ids, platform user ids) onto internal
// threads, authors, and integrations.
package identity

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/threadline/threadline/internal/database"
	"gorm.io/gorm"
)

const integrationCacheTTL = 5 * time.Minute

// Resolver performs external-reference lookups. Integration-by-team lookups
// are cached because every inbound Slack event performs one.
type Resolver struct {
	db               *gorm.DB
	integrationCache *ttlcache.Cache[string, *database.Integration]
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(db *gorm.DB) *Resolver {
	r := &Resolver{
		db: db,
		integrationCache: ttlcache.New(
			ttlcache.WithTTL[string, *database.Integration](integrationCacheTTL),
		),
	}
	go r.integrationCache.Start()
	return r
}

// ThreadsByIssueID returns candidate threads for a GitHub issue id.
func (r *Resolver) ThreadsByIssueID(issueID string) ([]database.Thread, error) {
	return database.ThreadsByIssueID(r.db, issueID)
}

// ThreadsByPRID returns candidate threads for a GitHub pull request id.
func (r *Resolver) ThreadsByPRID(prID string) ([]database.Thread, error) {
	return database.ThreadsByPRID(r.db, prID)
}

// ThreadBySlackTimestamp resolves a thread by its Slack thread timestamp.
// Returns nil when no thread matches.
func (r *Resolver) ThreadBySlackTimestamp(orgID, timestamp string) (*database.Thread, error) {
	return database.ThreadByExternalID(r.db, orgID, timestamp, database.PlatformSlack)
}

// IntegrationByTeamID resolves the enabled Slack integration for a workspace
// team id, scanning enabled rows and matching the parsed config teamId.
func (r *Resolver) IntegrationByTeamID(teamID string) (*database.Integration, error) {
	if item := r.integrationCache.Get(teamID); item != nil {
		return item.Value(), nil
	}

	integration, err := database.IntegrationByTeamID(r.db, database.PlatformSlack, teamID, true)
	if err != nil {
		return nil, err
	}
	r.integrationCache.Set(teamID, integration, ttlcache.DefaultTTL)
	return integration, nil
}

// InvalidateTeam drops a cached integration, e.g. after a config change.
func (r *Resolver) InvalidateTeam(teamID string) {
	r.integrationCache.Delete(teamID)
}

// EnsureAuthor resolves or creates the author for an organization and
// platform-native user id.
func (r *Resolver) EnsureAuthor(orgID, metaID, name string) (*database.Author, error) {
	return database.GetOrCreateAuthor(r.db, orgID, metaID, name)
}

// Stop shuts down the cache janitor.
func (r *Resolver) Stop() {
	r.integrationCache.Stop()
}
