package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/config"
	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
)

func writeAuditLines(t *testing.T, records ...audit.Record) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			t.Fatal(err)
		}
	}
	buf.WriteString("not a record\n")

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestQueryAudit_File(t *testing.T) {
	now := time.Now().UTC()
	path := writeAuditLines(t,
		audit.Record{ID: "1", Timestamp: now.Add(-2 * time.Hour), IdentityID: "alice", ToolName: "get_user_data", Decision: audit.DecisionAllow, Outcome: audit.OutcomeSuccess},
		audit.Record{ID: "2", Timestamp: now.Add(-time.Minute), IdentityID: "bob", ToolName: "post_user_data", Decision: audit.DecisionDeny, Outcome: audit.OutcomeBlocked, Rule: "readers"},
		audit.Record{ID: "3", Timestamp: now, IdentityID: "alice", ToolName: "post_user_data", Decision: audit.DecisionAllow, Outcome: audit.OutcomeError, ErrorKind: "remote_rejected"},
	)
	output := config.AuditFilePrefix + path

	tests := []struct {
		name    string
		filter  audit.Filter
		wantIDs []string
	}{
		{"all newest first", audit.Filter{}, []string{"3", "2", "1"}},
		{"by tool", audit.Filter{ToolName: "post_user_data"}, []string{"3", "2"}},
		{"by identity", audit.Filter{IdentityID: "alice"}, []string{"3", "1"}},
		{"by decision", audit.Filter{Decision: audit.DecisionDeny}, []string{"2"}},
		{"since", audit.Filter{Since: now.Add(-time.Hour)}, []string{"3", "2"}},
		{"limit", audit.Filter{Limit: 1}, []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := queryAudit(context.Background(), output, tt.filter)
			if err != nil {
				t.Fatalf("queryAudit() error = %v", err)
			}
			var ids []string
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestQueryAudit_Unreadable(t *testing.T) {
	for _, output := range []string{config.AuditStderr, config.AuditStdout, config.AuditFilePrefix + filepath.Join(t.TempDir(), "missing.jsonl")} {
		if _, err := queryAudit(context.Background(), output, audit.Filter{}); err == nil {
			t.Errorf("queryAudit(%q) error = nil, want error", output)
		}
	}
}

func TestPrintAuditTable(t *testing.T) {
	var out bytes.Buffer
	err := printAuditTable(&out, []audit.Record{{
		Timestamp:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		IdentityID:    "alice",
		ToolName:      "post_user_data",
		Decision:      audit.DecisionAllow,
		Outcome:       audit.OutcomeError,
		ErrorKind:     "remote_rejected",
		LatencyMicros: 1500,
	}})
	if err != nil {
		t.Fatalf("printAuditTable() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header and one row:\n%s", len(lines), out.String())
	}
	for _, want := range []string{"alice", "post_user_data", "error (remote_rejected)", "1.5ms", "-"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
}
