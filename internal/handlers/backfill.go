package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/github"
	"gorm.io/gorm"
)

// RepoLister lists the repositories a GitHub App installation can reach.
type RepoLister interface {
	ListInstallationRepos(ctx context.Context, installationID int64) ([]*gh.Repository, error)
}

// BackfillHandler serves the GitHub repository surface: listing the
// installation's repositories and importing a repository's existing issues
// into threads. Imports run in the background; progress and the in-flight
// repo set are written into the integration config where the frontend polls
// them.
type BackfillHandler struct {
	db        *gorm.DB
	appClient *github.AppClient
	lister    RepoLister
	log       zerolog.Logger
}

// NewBackfillHandler creates the handler. appClient may be nil when no
// GitHub App is configured, in which case requests fail with 503.
func NewBackfillHandler(db *gorm.DB, appClient *github.AppClient, logger zerolog.Logger) *BackfillHandler {
	h := &BackfillHandler{
		db:        db,
		appClient: appClient,
		log:       logger.With().Str("component", "backfill").Logger(),
	}
	if appClient != nil {
		h.lister = appClient
	}
	return h
}

// HandleRepos lists the repositories the organization's installation can
// reach and caches the names in the integration config.
func (h *BackfillHandler) HandleRepos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.lister == nil {
		http.Error(w, "GitHub App not configured", http.StatusServiceUnavailable)
		return
	}

	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}

	integration, err := database.EnabledIntegration(h.db, orgID, database.PlatformGitHub)
	if err != nil {
		http.Error(w, "GitHub integration not found", http.StatusNotFound)
		return
	}

	installationID, err := installationIDFromConfig(integration)
	if err != nil {
		h.log.Warn().Err(err).Str("org", orgID).Msg("integration has no usable installation id")
		http.Error(w, "GitHub integration has no installation", http.StatusConflict)
		return
	}

	repos, err := h.lister.ListInstallationRepos(r.Context(), installationID)
	if err != nil {
		h.log.Error().Err(err).Str("org", orgID).Msg("failed to list installation repos")
		http.Error(w, "Failed to list repositories", http.StatusBadGateway)
		return
	}

	names := make([]string, 0, len(repos))
	for _, repo := range repos {
		names = append(names, repo.GetFullName())
	}

	integration.Config["repos"] = names
	if err := database.SaveIntegration(h.db, integration); err != nil {
		h.log.Error().Err(err).Str("org", orgID).Msg("failed to cache repo list")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"repos": names})
}

// HandleBackfill starts a backfill for organization_id + owner + repo.
func (h *BackfillHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.appClient == nil {
		http.Error(w, "GitHub App not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	orgID := q.Get("organization_id")
	owner := q.Get("owner")
	repo := q.Get("repo")
	if orgID == "" || owner == "" || repo == "" {
		http.Error(w, "organization_id, owner and repo are required", http.StatusBadRequest)
		return
	}

	integration, err := database.EnabledIntegration(h.db, orgID, database.PlatformGitHub)
	if err != nil {
		http.Error(w, "GitHub integration not found", http.StatusNotFound)
		return
	}

	installationID, err := installationIDFromConfig(integration)
	if err != nil {
		h.log.Warn().Err(err).Str("org", orgID).Msg("integration has no usable installation id")
		http.Error(w, "GitHub integration has no installation", http.StatusConflict)
		return
	}

	fullName := owner + "/" + repo
	if err := h.setPendingRepo(integration, fullName, true); err != nil {
		h.log.Error().Err(err).Str("org", orgID).Msg("failed to record pending repo")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	go func() {
		defer func() {
			if err := h.setPendingRepo(integration, fullName, false); err != nil {
				h.log.Error().Err(err).Str("repo", fullName).Msg("failed to clear pending repo")
			}
		}()
		if err := github.BackfillRepoIssues(context.Background(), h.db, h.appClient, integration, installationID, owner, repo, h.log); err != nil {
			h.log.Error().Err(err).Str("org", orgID).Msg("backfill failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// setPendingRepo records or clears an in-flight import in the integration
// config's pendingRepos list.
func (h *BackfillHandler) setPendingRepo(integration *database.Integration, fullName string, pending bool) error {
	if integration.Config == nil {
		integration.Config = make(database.JSONB)
	}

	var remaining []string
	switch raw := integration.Config["pendingRepos"].(type) {
	case []interface{}:
		for _, v := range raw {
			if s, ok := v.(string); ok && s != fullName {
				remaining = append(remaining, s)
			}
		}
	case []string:
		for _, s := range raw {
			if s != fullName {
				remaining = append(remaining, s)
			}
		}
	}
	if pending {
		remaining = append(remaining, fullName)
	}

	integration.Config["pendingRepos"] = remaining
	return database.SaveIntegration(h.db, integration)
}

// installationIDFromConfig pulls the GitHub installation id out of the
// integration config, tolerating both string and numeric JSON encodings.
func installationIDFromConfig(integration *database.Integration) (int64, error) {
	switch v := integration.Config["installationId"].(type) {
	case string:
		return strconv.ParseInt(v, 10, 64)
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("no installationId in integration config")
	}
}
