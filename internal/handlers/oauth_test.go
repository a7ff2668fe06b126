package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/identity"
	slackbridge "github.com/threadline/threadline/internal/slack"
	"github.com/threadline/threadline/internal/testhelpers"
	"gorm.io/gorm"
)

type fakeReloader struct {
	triggered int
}

func (f *fakeReloader) TriggerReload() { f.triggered++ }

func newOAuthFixture(t *testing.T) (*gorm.DB, *OAuthHandler, *fakeReloader) {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	resolver := identity.NewResolver(db)
	t.Cleanup(resolver.Stop)

	reloader := &fakeReloader{}
	handler := NewOAuthHandler(db, OAuthConfig{
		SlackClientID:     "client-id",
		SlackClientSecret: "client-secret",
		SlackRedirectURL:  "https://app.example.com/oauth/slack/callback",
		GitHubAppSlug:     "threadline-sync",
		AppBaseURL:        "https://app.example.com",
		HandoffSecret:     "handoff-secret",
	}, slackbridge.NewConfigInstallationStore(db), resolver, reloader, zerolog.Nop())
	return db, handler, reloader
}

func TestSlackConnectCreatesPendingIntegration(t *testing.T) {
	db, handler, _ := newOAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/integrations/slack/connect?organization_id=org-1", nil)
	rec := httptest.NewRecorder()
	handler.HandleSlackConnect(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect location: %v", err)
	}
	if location.Host != "slack.com" || location.Path != "/oauth/v2/authorize" {
		t.Errorf("redirect target = %s", location)
	}

	integration, err := database.IntegrationByOrg(db, "org-1", database.PlatformSlack)
	if err != nil {
		t.Fatalf("IntegrationByOrg failed: %v", err)
	}
	if integration == nil {
		t.Fatal("expected a pending integration row")
	}
	if integration.Enabled {
		t.Error("pending row must start disabled")
	}

	csrf, _ := integration.Config["csrfToken"].(string)
	if csrf == "" {
		t.Fatal("expected a csrf token in the config")
	}
	if got := location.Query().Get("state"); got != "org-1_"+csrf {
		t.Errorf("state = %q, want org-1_%s", got, csrf)
	}
}

func TestSlackConnectRequiresOrganization(t *testing.T) {
	_, handler, _ := newOAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/integrations/slack/connect", nil)
	rec := httptest.NewRecorder()
	handler.HandleSlackConnect(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSlackCallbackCompletesInstall(t *testing.T) {
	db, handler, reloader := newOAuthFixture(t)

	// Start the flow to obtain a valid state.
	rec := httptest.NewRecorder()
	handler.HandleSlackConnect(rec, httptest.NewRequest(http.MethodGet, "/integrations/slack/connect?organization_id=org-1", nil))

	integration, err := database.IntegrationByOrg(db, "org-1", database.PlatformSlack)
	if err != nil || integration == nil {
		t.Fatalf("pending integration missing: %v", err)
	}
	csrf := integration.Config["csrfToken"].(string)

	handler.exchange = func(clientID, clientSecret, code, redirectURI string) (*slackapi.OAuthV2Response, error) {
		if code != "auth-code" {
			t.Errorf("code = %q, want auth-code", code)
		}
		resp := &slackapi.OAuthV2Response{
			AccessToken: "xoxb-granted",
			Scope:       "chat:write",
			BotUserID:   "U0BOT",
			AppID:       "A123",
		}
		resp.Team.ID = "T123"
		resp.Team.Name = "Acme"
		return resp, nil
	}

	callback := httptest.NewRequest(http.MethodGet,
		"/oauth/slack/callback?code=auth-code&state="+url.QueryEscape("org-1_"+csrf), nil)
	rec = httptest.NewRecorder()
	handler.HandleSlackCallback(rec, callback)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.Contains(location, "/integrations/slack/complete?token=") {
		t.Errorf("redirect = %q", location)
	}

	// The handoff token must resolve back to the installing organization.
	parsed, err := url.Parse(location)
	if err != nil {
		t.Fatalf("bad redirect: %v", err)
	}
	orgID, err := VerifyHandoffToken("handoff-secret", parsed.Query().Get("token"))
	if err != nil {
		t.Fatalf("handoff token invalid: %v", err)
	}
	if orgID != "org-1" {
		t.Errorf("handoff org = %q, want org-1", orgID)
	}

	reloaded, err := database.IntegrationByOrg(db, "org-1", database.PlatformSlack)
	if err != nil {
		t.Fatalf("IntegrationByOrg failed: %v", err)
	}
	if !reloaded.Enabled {
		t.Error("integration must be enabled after the callback")
	}
	if reloaded.TeamID() != "T123" {
		t.Errorf("teamId = %q, want T123", reloaded.TeamID())
	}
	if _, ok := reloaded.Config["csrfToken"]; ok {
		t.Error("csrf token must be cleared after the callback")
	}

	installation, err := slackbridge.NewConfigInstallationStore(db).Fetch("T123")
	if err != nil {
		t.Fatalf("installation not stored: %v", err)
	}
	if installation.BotToken != "xoxb-granted" {
		t.Errorf("bot token = %q", installation.BotToken)
	}

	if reloader.triggered != 1 {
		t.Errorf("expected one reload trigger, got %d", reloader.triggered)
	}
}

func TestSlackCallbackRejectsCSRFMismatch(t *testing.T) {
	db, handler, _ := newOAuthFixture(t)

	rec := httptest.NewRecorder()
	handler.HandleSlackConnect(rec, httptest.NewRequest(http.MethodGet, "/integrations/slack/connect?organization_id=org-1", nil))

	callback := httptest.NewRequest(http.MethodGet,
		"/oauth/slack/callback?code=auth-code&state="+url.QueryEscape("org-1_forged-token"), nil)
	rec = httptest.NewRecorder()
	handler.HandleSlackCallback(rec, callback)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Location"), "error=csrf_token_mismatch") {
		t.Errorf("redirect = %q, want csrf error", rec.Header().Get("Location"))
	}

	integration, err := database.IntegrationByOrg(db, "org-1", database.PlatformSlack)
	if err != nil {
		t.Fatalf("IntegrationByOrg failed: %v", err)
	}
	if integration.Enabled {
		t.Error("integration must stay disabled after a rejected callback")
	}
}

func TestSlackCallbackUnknownOrg(t *testing.T) {
	_, handler, _ := newOAuthFixture(t)

	callback := httptest.NewRequest(http.MethodGet,
		"/oauth/slack/callback?code=auth-code&state="+url.QueryEscape("org-9_sometoken"), nil)
	rec := httptest.NewRecorder()
	handler.HandleSlackCallback(rec, callback)

	if !strings.Contains(rec.Header().Get("Location"), "error=integration_not_found") {
		t.Errorf("redirect = %q, want integration_not_found", rec.Header().Get("Location"))
	}
}

func TestSlackCallbackUserDenied(t *testing.T) {
	_, handler, _ := newOAuthFixture(t)

	callback := httptest.NewRequest(http.MethodGet, "/oauth/slack/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	handler.HandleSlackCallback(rec, callback)

	if !strings.Contains(rec.Header().Get("Location"), "error=access_denied") {
		t.Errorf("redirect = %q, want access_denied", rec.Header().Get("Location"))
	}
}

func TestGitHubCallbackCompletesInstall(t *testing.T) {
	db, handler, _ := newOAuthFixture(t)

	rec := httptest.NewRecorder()
	handler.HandleGitHubConnect(rec, httptest.NewRequest(http.MethodGet, "/integrations/github/connect?organization_id=org-1", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Location"), "github.com/apps/threadline-sync/installations/new") {
		t.Errorf("redirect = %q", rec.Header().Get("Location"))
	}

	integration, err := database.IntegrationByOrg(db, "org-1", database.PlatformGitHub)
	if err != nil || integration == nil {
		t.Fatalf("pending integration missing: %v", err)
	}
	csrf := integration.Config["csrfToken"].(string)

	callback := httptest.NewRequest(http.MethodGet,
		"/oauth/github/callback?installation_id=778899&state="+url.QueryEscape("org-1_"+csrf), nil)
	rec = httptest.NewRecorder()
	handler.HandleGitHubCallback(rec, callback)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Location"), "/integrations/github/complete?token=") {
		t.Errorf("redirect = %q", rec.Header().Get("Location"))
	}

	reloaded, err := database.IntegrationByOrg(db, "org-1", database.PlatformGitHub)
	if err != nil {
		t.Fatalf("IntegrationByOrg failed: %v", err)
	}
	if !reloaded.Enabled {
		t.Error("integration must be enabled after the callback")
	}
	if id, _ := reloaded.Config["installationId"].(string); id != "778899" {
		t.Errorf("installationId = %v, want 778899", reloaded.Config["installationId"])
	}
}

func TestDecodeState(t *testing.T) {
	tests := []struct {
		state   string
		wantOrg string
		wantTok string
		wantOK  bool
	}{
		{"org-1_abc", "org-1", "abc", true},
		{"org_with_underscores_tok", "org_with_underscores", "tok", true},
		{"noseparator", "", "", false},
		{"_leading", "", "", false},
		{"trailing_", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		org, tok, ok := decodeState(tt.state)
		if org != tt.wantOrg || tok != tt.wantTok || ok != tt.wantOK {
			t.Errorf("decodeState(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.state, org, tok, ok, tt.wantOrg, tt.wantTok, tt.wantOK)
		}
	}
}
