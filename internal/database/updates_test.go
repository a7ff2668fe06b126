package database_test

import (
	"testing"

	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/testhelpers"
)

func TestMarkUpdateReplicated(t *testing.T) {
	db := testhelpers.NewTestDB(t)

	thread := testhelpers.NewThreadBuilder().WithSlackLink("C123", "1700000000.000100").Build()
	testhelpers.MustCreate(t, db, &thread)

	update := database.Update{
		ThreadID: thread.ID,
		Type:     database.UpdateTypeStatusChanged,
		Metadata: database.JSONB{"newStatus": 2},
	}
	if err := database.AppendUpdate(db, &update); err != nil {
		t.Fatalf("AppendUpdate failed: %v", err)
	}

	if err := database.MarkUpdateReplicated(db, update.ID, database.PlatformSlack, "1700000004.000500"); err != nil {
		t.Fatalf("MarkUpdateReplicated failed: %v", err)
	}
	// Markers for different platforms accumulate instead of clobbering.
	if err := database.MarkUpdateReplicated(db, update.ID, database.PlatformGitHub, true); err != nil {
		t.Fatalf("MarkUpdateReplicated failed: %v", err)
	}

	var reloaded database.Update
	if err := db.First(&reloaded, update.ID).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reloaded.ReplicatedTo(database.PlatformSlack) {
		t.Error("slack marker missing")
	}
	if !reloaded.ReplicatedTo(database.PlatformGitHub) {
		t.Error("github marker missing")
	}
	if ack, _ := reloaded.Replicated["slack"].(string); ack != "1700000004.000500" {
		t.Errorf("slack ack = %v, want message timestamp", reloaded.Replicated["slack"])
	}
}

func TestUnreplicatedUpdates(t *testing.T) {
	db := testhelpers.NewTestDB(t)

	linked := testhelpers.NewThreadBuilder().WithSlackLink("C123", "1700000000.000100").Build()
	unlinked := testhelpers.NewThreadBuilder().WithName("native only").Build()
	testhelpers.MustCreate(t, db, &linked)
	testhelpers.MustCreate(t, db, &unlinked)

	pending := database.Update{
		ThreadID: linked.ID,
		Type:     database.UpdateTypeStatusChanged,
	}
	done := database.Update{
		ThreadID:   linked.ID,
		Type:       database.UpdateTypePriorityChanged,
		Replicated: database.JSONB{"slack": "1700000005.000600"},
	}
	internal := database.Update{
		ThreadID: unlinked.ID,
		Type:     database.UpdateTypeStatusChanged,
	}
	for _, u := range []*database.Update{&pending, &done, &internal} {
		if err := database.AppendUpdate(db, u); err != nil {
			t.Fatalf("AppendUpdate failed: %v", err)
		}
	}

	updates, err := database.UnreplicatedUpdates(db, database.PlatformSlack)
	if err != nil {
		t.Fatalf("UnreplicatedUpdates failed: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 pending update, got %d", len(updates))
	}
	if updates[0].ID != pending.ID {
		t.Errorf("expected update %d, got %d", pending.ID, updates[0].ID)
	}
	if updates[0].Thread.ID != linked.ID {
		t.Error("expected thread to be preloaded")
	}
}

func TestUpdatesByThreadOrder(t *testing.T) {
	db := testhelpers.NewTestDB(t)

	thread := testhelpers.NewThreadBuilder().Build()
	testhelpers.MustCreate(t, db, &thread)

	first := database.Update{ThreadID: thread.ID, Type: database.UpdateTypeStatusChanged}
	second := database.Update{ThreadID: thread.ID, Type: database.UpdateTypeAssignedChanged}
	for _, u := range []*database.Update{&first, &second} {
		if err := database.AppendUpdate(db, u); err != nil {
			t.Fatalf("AppendUpdate failed: %v", err)
		}
	}

	updates, err := database.UpdatesByThread(db, thread.ID)
	if err != nil {
		t.Fatalf("UpdatesByThread failed: %v", err)
	}
	if len(updates) != 2 || updates[0].ID != first.ID || updates[1].ID != second.ID {
		t.Errorf("expected insertion order [%d %d], got %v", first.ID, second.ID, updates)
	}
}
