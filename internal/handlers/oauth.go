package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/identity"
	slackbridge "github.com/threadline/threadline/internal/slack"
	"gorm.io/gorm"
)

// ErrCSRFTokenMismatch is returned when an OAuth callback's state token does
// not match the one stored at the start of the flow.
var ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

// slackScopes is the bot scope set requested on install.
const slackScopes = "channels:history,channels:read,chat:write,chat:write.customize,groups:history,users:read"

// Reloader restarts the realtime client after install state changes.
type Reloader interface {
	TriggerReload()
}

// OAuthConfig carries the credentials and URLs the install flows need.
type OAuthConfig struct {
	SlackClientID     string
	SlackClientSecret string
	SlackRedirectURL  string
	GitHubAppSlug     string
	AppBaseURL        string
	HandoffSecret     string
}

// exchangeFunc swaps an OAuth code for tokens. Injectable for tests.
type exchangeFunc func(clientID, clientSecret, code, redirectURI string) (*slackapi.OAuthV2Response, error)

// OAuthHandler drives the Slack and GitHub install flows. Both follow the
// same shape: a connect endpoint creates a disabled integration row holding a
// CSRF token and redirects to the platform, and a callback validates the
// state, stores the grant, and enables the row.
type OAuthHandler struct {
	db       *gorm.DB
	cfg      OAuthConfig
	installs slackbridge.InstallationStore
	resolver *identity.Resolver
	reloader Reloader
	exchange exchangeFunc
	log      zerolog.Logger
}

// NewOAuthHandler creates an OAuth handler. reloader may be nil when no
// realtime client is running.
func NewOAuthHandler(db *gorm.DB, cfg OAuthConfig, installs slackbridge.InstallationStore, resolver *identity.Resolver, reloader Reloader, logger zerolog.Logger) *OAuthHandler {
	return &OAuthHandler{
		db:       db,
		cfg:      cfg,
		installs: installs,
		resolver: resolver,
		reloader: reloader,
		exchange: func(clientID, clientSecret, code, redirectURI string) (*slackapi.OAuthV2Response, error) {
			return slackapi.GetOAuthV2Response(http.DefaultClient, clientID, clientSecret, code, redirectURI)
		},
		log: logger.With().Str("component", "oauth").Logger(),
	}
}

// HandleSlackConnect starts the Slack install flow for an organization. The
// integration row is created disabled, holding only the CSRF token, and the
// browser is redirected to Slack's authorize page.
func (h *OAuthHandler) HandleSlackConnect(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}

	csrf, err := h.beginFlow(orgID, database.PlatformSlack)
	if err != nil {
		h.log.Error().Err(err).Str("org", orgID).Msg("failed to start slack install")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	params := url.Values{}
	params.Set("client_id", h.cfg.SlackClientID)
	params.Set("scope", slackScopes)
	params.Set("redirect_uri", h.cfg.SlackRedirectURL)
	params.Set("state", encodeState(orgID, csrf))
	http.Redirect(w, r, "https://slack.com/oauth/v2/authorize?"+params.Encode(), http.StatusFound)
}

// HandleSlackCallback finishes the Slack install: validates state, exchanges
// the code, stores the installation keyed by team id, and enables the
// integration. Errors redirect back to the app with an error code rather
// than rendering anything here.
func (h *OAuthHandler) HandleSlackCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		h.redirectError(w, r, denied)
		return
	}

	integration, err := h.finishState(q.Get("state"), database.PlatformSlack)
	if err != nil {
		h.log.Warn().Err(err).Msg("slack callback state rejected")
		h.redirectError(w, r, stateErrorCode(err))
		return
	}

	resp, err := h.exchange(h.cfg.SlackClientID, h.cfg.SlackClientSecret, q.Get("code"), h.cfg.SlackRedirectURL)
	if err != nil {
		h.log.Error().Err(err).Msg("slack oauth exchange failed")
		h.redirectError(w, r, "oauth_failed")
		return
	}

	// The team id must land in the config before the installation store
	// runs: the store keys every lookup off config teamId, and on a first
	// install the row only holds the CSRF token.
	integration.Config["teamId"] = resp.Team.ID
	if err := database.SaveIntegration(h.db, integration); err != nil {
		h.log.Error().Err(err).Msg("failed to persist team id")
		h.redirectError(w, r, "oauth_failed")
		return
	}

	if err := h.installs.Store(&slackbridge.Installation{
		TeamID:    resp.Team.ID,
		TeamName:  resp.Team.Name,
		BotToken:  resp.AccessToken,
		BotUserID: resp.BotUserID,
		AppID:     resp.AppID,
		Scopes:    resp.Scope,
	}); err != nil {
		h.log.Error().Err(err).Msg("failed to store installation")
		h.redirectError(w, r, "oauth_failed")
		return
	}

	if err := h.enableIntegration(integration); err != nil {
		h.log.Error().Err(err).Msg("failed to enable integration")
		h.redirectError(w, r, "oauth_failed")
		return
	}

	h.resolver.InvalidateTeam(resp.Team.ID)
	if h.reloader != nil {
		h.reloader.TriggerReload()
	}
	h.redirectDone(w, r, "slack", integration.OrganizationID)
}

// HandleGitHubConnect starts the GitHub App install flow for an
// organization, mirroring the Slack connect endpoint.
func (h *OAuthHandler) HandleGitHubConnect(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}

	csrf, err := h.beginFlow(orgID, database.PlatformGitHub)
	if err != nil {
		h.log.Error().Err(err).Str("org", orgID).Msg("failed to start github install")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	target := "https://github.com/apps/" + url.PathEscape(h.cfg.GitHubAppSlug) +
		"/installations/new?state=" + url.QueryEscape(encodeState(orgID, csrf))
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleGitHubCallback finishes a GitHub App install. GitHub sends back the
// installation id directly, so there is no code exchange; the id is stored
// on the integration and the row enabled.
func (h *OAuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	installationID := q.Get("installation_id")
	if installationID == "" {
		h.redirectError(w, r, "missing_installation")
		return
	}

	integration, err := h.finishState(q.Get("state"), database.PlatformGitHub)
	if err != nil {
		h.log.Warn().Err(err).Msg("github callback state rejected")
		h.redirectError(w, r, stateErrorCode(err))
		return
	}

	integration.Config["installationId"] = installationID
	integration.Enabled = true
	if err := database.SaveIntegration(h.db, integration); err != nil {
		h.log.Error().Err(err).Msg("failed to enable integration")
		h.redirectError(w, r, "install_failed")
		return
	}

	h.redirectDone(w, r, "github", integration.OrganizationID)
}

// beginFlow creates or reuses the organization's integration row for the
// platform, stamps a fresh CSRF token into its config, and returns the token.
func (h *OAuthHandler) beginFlow(orgID string, platform database.Platform) (string, error) {
	integration, err := database.IntegrationByOrg(h.db, orgID, platform)
	if err != nil {
		return "", err
	}

	csrf := uuid.NewString()
	if integration == nil {
		integration = &database.Integration{
			OrganizationID: orgID,
			Type:           platform,
			Enabled:        false,
			Config:         database.JSONB{"csrfToken": csrf},
		}
		return csrf, database.CreateIntegration(h.db, integration)
	}

	if integration.Config == nil {
		integration.Config = make(database.JSONB)
	}
	integration.Config["csrfToken"] = csrf
	return csrf, database.SaveIntegration(h.db, integration)
}

// finishState validates a callback state parameter and returns the matching
// integration row with its CSRF token already cleared from the in-memory
// config.
func (h *OAuthHandler) finishState(state string, platform database.Platform) (*database.Integration, error) {
	orgID, token, ok := decodeState(state)
	if !ok {
		return nil, ErrCSRFTokenMismatch
	}

	integration, err := database.IntegrationByOrg(h.db, orgID, platform)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return nil, database.ErrIntegrationNotFound
	}

	stored, _ := integration.Config["csrfToken"].(string)
	if stored == "" || stored != token {
		return nil, ErrCSRFTokenMismatch
	}
	delete(integration.Config, "csrfToken")
	return integration, nil
}

// enableIntegration flips only the enabled column. The installation store may
// have rewritten the config since this row was loaded, so a full save here
// would clobber it.
func (h *OAuthHandler) enableIntegration(integration *database.Integration) error {
	integration.Enabled = true
	return h.db.Model(&database.Integration{}).
		Where("id = ?", integration.ID).
		Update("enabled", true).Error
}

func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.cfg.AppBaseURL+"/integrations?error="+url.QueryEscape(code), http.StatusFound)
}

func (h *OAuthHandler) redirectDone(w http.ResponseWriter, r *http.Request, platform, orgID string) {
	target := h.cfg.AppBaseURL + "/integrations/" + platform + "/complete"
	token, err := MintHandoffToken(h.cfg.HandoffSecret, orgID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to mint handoff token")
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	http.Redirect(w, r, target+"?token="+url.QueryEscape(token), http.StatusFound)
}

func encodeState(orgID, csrf string) string {
	return orgID + "_" + csrf
}

// decodeState splits "<orgID>_<csrf>". The CSRF token is a UUID and contains
// no underscores, so the split anchors on the last separator and the org id
// may contain underscores itself.
func decodeState(state string) (orgID, csrf string, ok bool) {
	i := strings.LastIndex(state, "_")
	if i <= 0 || i == len(state)-1 {
		return "", "", false
	}
	return state[:i], state[i+1:], true
}

func stateErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCSRFTokenMismatch):
		return "csrf_token_mismatch"
	case errors.Is(err, database.ErrIntegrationNotFound):
		return "integration_not_found"
	default:
		return "install_failed"
	}
}
