package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
)

func openTestStore(t *testing.T) *AuditStore {
	t.Helper()
	store, err := OpenAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenAuditStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAuditStore_AppendAndQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []audit.Record{
		{ID: "a", Timestamp: base, ToolName: "get_user_data", IdentityID: "id-1", Decision: audit.DecisionAllow, Outcome: audit.OutcomeSuccess,
			ToolArguments: map[string]interface{}{"userId": "u100"}, LatencyMicros: 1200},
		{ID: "b", Timestamp: base.Add(time.Second), ToolName: "post_user_data", IdentityID: "id-2", Decision: audit.DecisionDeny, Rule: "no-writes", Outcome: audit.OutcomeBlocked},
		{Timestamp: base.Add(1500 * time.Millisecond), ToolName: "get_user_data", IdentityID: "id-2", Decision: audit.DecisionAllow, Outcome: audit.OutcomeError, ErrorKind: "not_found"},
	}
	if err := store.Append(ctx, records...); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	all, err := store.Query(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Query() returned %d records, want 3", len(all))
	}
	if all[0].ErrorKind != "not_found" || all[0].ID == "" {
		t.Errorf("newest record = %+v, want generated ID and error kind", all[0])
	}
	if all[2].ID != "a" || all[2].ToolArguments["userId"] != "u100" || all[2].LatencyMicros != 1200 {
		t.Errorf("oldest record = %+v", all[2])
	}
	if !all[2].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", all[2].Timestamp, base)
	}

	tests := []struct {
		name   string
		filter audit.Filter
		want   []string
	}{
		{"by tool", audit.Filter{ToolName: "post_user_data"}, []string{"b"}},
		{"by decision", audit.Filter{Decision: audit.DecisionAllow, IdentityID: "id-1"}, []string{"a"}},
		{"since", audit.Filter{Since: base.Add(500 * time.Millisecond), ToolName: "post_user_data"}, []string{"b"}},
		{"limit", audit.Filter{Limit: 1, ToolName: "post_user_data"}, []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Query() returned %d records, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("record %d ID = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}

	limited, err := store.Query(ctx, audit.Filter{Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Errorf("Query(limit 2) = %d records, %v", len(limited), err)
	}
}

func TestAuditStore_DuplicateIDRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	rec := audit.Record{ID: "dup", Timestamp: time.Now(), ToolName: "get_user_data", Decision: audit.DecisionAllow, Outcome: audit.OutcomeSuccess}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	other := rec
	other.ID = "fresh"
	if err := store.Append(ctx, other, rec); err == nil {
		t.Fatal("Append() with duplicate ID error = nil")
	}

	got, err := store.Query(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("records after failed batch = %d, want 1", len(got))
	}
}

func TestAuditStore_Reopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := OpenAuditStore(path)
	if err != nil {
		t.Fatalf("OpenAuditStore() error = %v", err)
	}
	if err := store.Append(ctx, audit.Record{ID: "kept", Timestamp: time.Now(), ToolName: "t", Decision: audit.DecisionAllow, Outcome: audit.OutcomeSuccess}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenAuditStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Query(ctx, audit.Filter{})
	if err != nil || len(got) != 1 || got[0].ID != "kept" {
		t.Errorf("Query() after reopen = %+v, %v", got, err)
	}
}
