package identity_test

import (
	"errors"
	"testing"

	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/identity"
	"github.com/threadline/threadline/internal/testhelpers"
)

func TestIntegrationByTeamIDCaching(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	resolver := identity.NewResolver(db)
	defer resolver.Stop()

	integration := testhelpers.NewIntegrationBuilder().
		WithTeamID("T123").
		WithSelectedChannels("C1").
		Build()
	testhelpers.MustCreate(t, db, &integration)

	got, err := resolver.IntegrationByTeamID("T123")
	if err != nil {
		t.Fatalf("IntegrationByTeamID failed: %v", err)
	}
	if got.ID != integration.ID {
		t.Fatalf("expected integration %d, got %d", integration.ID, got.ID)
	}

	// A database change is invisible until the cache entry is dropped.
	integration.Config["selectedChannels"] = []interface{}{"C1", "C2"}
	if err := database.SaveIntegration(db, &integration); err != nil {
		t.Fatalf("SaveIntegration failed: %v", err)
	}

	cached, err := resolver.IntegrationByTeamID("T123")
	if err != nil {
		t.Fatalf("IntegrationByTeamID failed: %v", err)
	}
	if len(cached.SelectedChannels()) != 1 {
		t.Errorf("expected stale cached config, got %v", cached.SelectedChannels())
	}

	resolver.InvalidateTeam("T123")

	fresh, err := resolver.IntegrationByTeamID("T123")
	if err != nil {
		t.Fatalf("IntegrationByTeamID failed: %v", err)
	}
	if len(fresh.SelectedChannels()) != 2 {
		t.Errorf("expected fresh config after invalidation, got %v", fresh.SelectedChannels())
	}
}

func TestIntegrationByTeamIDUnknownTeam(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	resolver := identity.NewResolver(db)
	defer resolver.Stop()

	if _, err := resolver.IntegrationByTeamID("T-NOPE"); !errors.Is(err, database.ErrIntegrationNotFound) {
		t.Errorf("expected ErrIntegrationNotFound, got %v", err)
	}
}

func TestEnsureAuthor(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	resolver := identity.NewResolver(db)
	defer resolver.Stop()

	first, err := resolver.EnsureAuthor("org-1", "U123", "Alice")
	if err != nil {
		t.Fatalf("EnsureAuthor failed: %v", err)
	}
	second, err := resolver.EnsureAuthor("org-1", "U123", "Alice")
	if err != nil {
		t.Fatalf("EnsureAuthor failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same author row, got %d and %d", first.ID, second.ID)
	}
}

func TestThreadBySlackTimestamp(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	resolver := identity.NewResolver(db)
	defer resolver.Stop()

	thread := testhelpers.NewThreadBuilder().WithSlackLink("C123", "1700000000.000100").Build()
	testhelpers.MustCreate(t, db, &thread)

	got, err := resolver.ThreadBySlackTimestamp("org-1", "1700000000.000100")
	if err != nil {
		t.Fatalf("ThreadBySlackTimestamp failed: %v", err)
	}
	if got == nil || got.ID != thread.ID {
		t.Fatalf("expected thread %d, got %+v", thread.ID, got)
	}

	got, err = resolver.ThreadBySlackTimestamp("org-1", "1700000000.999999")
	if err != nil {
		t.Fatalf("ThreadBySlackTimestamp failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown timestamp, got thread %d", got.ID)
	}
}
