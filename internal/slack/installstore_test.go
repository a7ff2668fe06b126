package slack_test

import (
	"errors"
	"testing"

	"github.com/threadline/threadline/internal/database"
	slackbridge "github.com/threadline/threadline/internal/slack"
	"github.com/threadline/threadline/internal/testhelpers"
)

func TestInstallationStoreRoundTrip(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	store := slackbridge.NewConfigInstallationStore(db)

	// Row created by the connect endpoint: disabled, team id already known.
	integration := testhelpers.NewIntegrationBuilder().
		Disabled().
		WithTeamID("T123").
		WithConfig("csrfToken", "abc").
		Build()
	testhelpers.MustCreate(t, db, &integration)

	installation := &slackbridge.Installation{
		TeamID:    "T123",
		TeamName:  "Acme",
		BotToken:  "xoxb-secret",
		BotUserID: "U0BOT",
		Scopes:    "chat:write",
	}
	if err := store.Store(installation); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	fetched, err := store.Fetch("T123")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.BotToken != "xoxb-secret" || fetched.TeamName != "Acme" {
		t.Errorf("fetched installation = %+v", fetched)
	}

	// Storing must not disturb the rest of the config blob.
	reloaded, err := database.IntegrationByOrg(db, "org-1", database.PlatformSlack)
	if err != nil {
		t.Fatalf("IntegrationByOrg failed: %v", err)
	}
	if token, _ := reloaded.Config["csrfToken"].(string); token != "abc" {
		t.Errorf("csrfToken = %v, want abc", reloaded.Config["csrfToken"])
	}
}

func TestInstallationStoreFetchMissing(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	store := slackbridge.NewConfigInstallationStore(db)

	if _, err := store.Fetch("T-NONE"); !errors.Is(err, slackbridge.ErrInstallationNotFound) {
		t.Errorf("expected ErrInstallationNotFound for missing team, got %v", err)
	}

	// An integration that exists but has no installation blob yet.
	pending := testhelpers.NewIntegrationBuilder().
		Disabled().
		WithTeamID("T-PENDING").
		Build()
	testhelpers.MustCreate(t, db, &pending)

	if _, err := store.Fetch("T-PENDING"); !errors.Is(err, slackbridge.ErrInstallationNotFound) {
		t.Errorf("expected ErrInstallationNotFound for pending row, got %v", err)
	}
}

func TestInstallationStoreStoreUnknownTeam(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	store := slackbridge.NewConfigInstallationStore(db)

	err := store.Store(&slackbridge.Installation{TeamID: "T-NONE", BotToken: "xoxb"})
	if err == nil {
		t.Fatal("expected store to fail when no integration row exists")
	}
}

func TestInstallationStoreDelete(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	store := slackbridge.NewConfigInstallationStore(db)

	integration := testhelpers.NewIntegrationBuilder().WithTeamID("T123").Build()
	testhelpers.MustCreate(t, db, &integration)

	if err := store.Store(&slackbridge.Installation{TeamID: "T123", BotToken: "xoxb"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := store.Delete("T123"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Fetch("T123"); !errors.Is(err, slackbridge.ErrInstallationNotFound) {
		t.Errorf("expected installation to be gone, got %v", err)
	}

	// Deleting again, or deleting an unknown team, is a no-op.
	if err := store.Delete("T123"); err != nil {
		t.Errorf("repeat delete should be a no-op, got %v", err)
	}
	if err := store.Delete("T-NONE"); err != nil {
		t.Errorf("unknown team delete should be a no-op, got %v", err)
	}
}
