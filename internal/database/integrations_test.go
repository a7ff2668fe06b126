package database_test

import (
	"errors"
	"testing"

	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/testhelpers"
)

func TestEnabledIntegration(t *testing.T) {
	db := testhelpers.NewTestDB(t)

	enabled := testhelpers.NewIntegrationBuilder().WithTeamID("T1").Build()
	disabled := testhelpers.NewIntegrationBuilder().WithOrg("org-2").Disabled().Build()
	testhelpers.MustCreate(t, db, &enabled)
	testhelpers.MustCreate(t, db, &disabled)

	got, err := database.EnabledIntegration(db, "org-1", database.PlatformSlack)
	if err != nil {
		t.Fatalf("EnabledIntegration failed: %v", err)
	}
	if got.ID != enabled.ID {
		t.Errorf("expected integration %d, got %d", enabled.ID, got.ID)
	}

	if _, err := database.EnabledIntegration(db, "org-2", database.PlatformSlack); !errors.Is(err, database.ErrIntegrationNotFound) {
		t.Errorf("disabled row should not resolve, got err = %v", err)
	}
	if _, err := database.EnabledIntegration(db, "org-1", database.PlatformGitHub); !errors.Is(err, database.ErrIntegrationNotFound) {
		t.Errorf("wrong platform should not resolve, got err = %v", err)
	}
}

func TestIntegrationByTeamID(t *testing.T) {
	db := testhelpers.NewTestDB(t)

	active := testhelpers.NewIntegrationBuilder().WithTeamID("T-ACTIVE").Build()
	// A row mid-install: disabled, team id already stored.
	pending := testhelpers.NewIntegrationBuilder().
		WithOrg("org-2").
		Disabled().
		WithTeamID("T-PENDING").
		WithConfig("csrfToken", "abc").
		Build()
	testhelpers.MustCreate(t, db, &active)
	testhelpers.MustCreate(t, db, &pending)

	got, err := database.IntegrationByTeamID(db, database.PlatformSlack, "T-ACTIVE", true)
	if err != nil {
		t.Fatalf("IntegrationByTeamID failed: %v", err)
	}
	if got.ID != active.ID {
		t.Errorf("expected integration %d, got %d", active.ID, got.ID)
	}

	if _, err := database.IntegrationByTeamID(db, database.PlatformSlack, "T-PENDING", true); !errors.Is(err, database.ErrIntegrationNotFound) {
		t.Errorf("pending row should not match with onlyEnabled, got err = %v", err)
	}

	got, err = database.IntegrationByTeamID(db, database.PlatformSlack, "T-PENDING", false)
	if err != nil {
		t.Fatalf("IntegrationByTeamID failed: %v", err)
	}
	if got.ID != pending.ID {
		t.Errorf("expected pending integration %d, got %d", pending.ID, got.ID)
	}

	if _, err := database.IntegrationByTeamID(db, database.PlatformSlack, "", false); !errors.Is(err, database.ErrIntegrationNotFound) {
		t.Errorf("empty team id must not match, got err = %v", err)
	}
}

func TestIntegrationByOrg(t *testing.T) {
	db := testhelpers.NewTestDB(t)

	row := testhelpers.NewIntegrationBuilder().Disabled().Build()
	testhelpers.MustCreate(t, db, &row)

	got, err := database.IntegrationByOrg(db, "org-1", database.PlatformSlack)
	if err != nil {
		t.Fatalf("IntegrationByOrg failed: %v", err)
	}
	if got == nil || got.ID != row.ID {
		t.Fatalf("expected integration %d, got %+v", row.ID, got)
	}

	got, err = database.IntegrationByOrg(db, "org-9", database.PlatformSlack)
	if err != nil {
		t.Fatalf("IntegrationByOrg failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown org, got %d", got.ID)
	}
}
