package relay

import (
	"testing"

	"github.com/threadline/threadline/internal/database"
)

func TestFormatUpdate(t *testing.T) {
	tests := []struct {
		name   string
		update database.Update
		want   string
	}{
		{
			name: "status change with label",
			update: database.Update{
				Type:     database.UpdateTypeStatusChanged,
				Metadata: database.JSONB{"userName": "Alice", "newStatusLabel": "Resolved"},
			},
			want: "Alice changed status to Resolved",
		},
		{
			name: "status change falls back to numeric status",
			update: database.Update{
				Type:     database.UpdateTypeStatusChanged,
				Metadata: database.JSONB{"newStatus": 2},
			},
			want: "Someone changed status to Resolved",
		},
		{
			name: "status change from json round-trip",
			update: database.Update{
				Type:     database.UpdateTypeStatusChanged,
				Metadata: database.JSONB{"newStatus": float64(3)},
			},
			want: "Someone changed status to Closed",
		},
		{
			name: "priority change",
			update: database.Update{
				Type:     database.UpdateTypePriorityChanged,
				Metadata: database.JSONB{"userName": "Bob", "newPriority": 1},
			},
			want: "Bob changed priority to P1",
		},
		{
			name: "assignment with name",
			update: database.Update{
				Type:     database.UpdateTypeAssignedChanged,
				Metadata: database.JSONB{"userName": "Bob", "assignedName": "Carol"},
			},
			want: "Bob assigned this thread to Carol",
		},
		{
			name: "assignment without name",
			update: database.Update{
				Type:     database.UpdateTypeAssignedChanged,
				Metadata: database.JSONB{"userName": "Bob"},
			},
			want: "Bob changed the assignee",
		},
		{
			name: "marked duplicate",
			update: database.Update{
				Type:     database.UpdateTypeMarkedDuplicate,
				Metadata: database.JSONB{"userName": "Alice"},
			},
			want: "Alice marked this thread as a duplicate",
		},
		{
			name:   "unknown type with no metadata",
			update: database.Update{Type: "renamed"},
			want:   "Someone updated this thread",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatUpdate(&tt.update); got != tt.want {
				t.Errorf("FormatUpdate() = %q, want %q", got, tt.want)
			}
		})
	}
}
