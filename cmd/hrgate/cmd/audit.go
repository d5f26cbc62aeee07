package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/hrgate/internal/config"
	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
)

var (
	auditOutput   string
	auditTool     string
	auditIdentity string
	auditDecision string
	auditSince    time.Duration
	auditLimit    int
	auditJSON     bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit records",
	Long: `Show recent tool-call audit records, newest first.

Records are read from the store configured in audit.output, or from
--output. Only file:// and sqlite:// outputs can be read back.

Examples:
  hrgate audit --tool post_user_data --since 1h
  hrgate audit --output sqlite:///var/lib/hrgate/audit.db --decision deny --json`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	f := auditCmd.Flags()
	f.StringVar(&auditOutput, "output", "", "audit store to read (default: audit.output from config)")
	f.StringVar(&auditTool, "tool", "", "only records for this tool")
	f.StringVar(&auditIdentity, "identity", "", "only records for this identity ID")
	f.StringVar(&auditDecision, "decision", "", "only allow or deny records")
	f.DurationVar(&auditSince, "since", 0, "only records newer than this (e.g. 30m, 24h)")
	f.IntVar(&auditLimit, "limit", audit.DefaultQueryLimit, "maximum number of records")
	f.BoolVar(&auditJSON, "json", false, "print JSON lines instead of a table")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, _ []string) error {
	output := auditOutput
	if output == "" {
		cfg, err := config.LoadConfigRaw()
		if err != nil {
			return err
		}
		output = cfg.Audit.Output
	}

	filter := audit.Filter{
		ToolName:   auditTool,
		IdentityID: auditIdentity,
		Decision:   auditDecision,
		Limit:      auditLimit,
	}
	if auditSince > 0 {
		filter.Since = time.Now().Add(-auditSince)
	}

	records, err := queryAudit(cmd.Context(), output, filter)
	if err != nil {
		return err
	}
	if auditJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	return printAuditTable(cmd.OutOrStdout(), records)
}

// queryAudit reads records matching filter from the store named by output.
func queryAudit(ctx context.Context, output string, filter audit.Filter) ([]audit.Record, error) {
	switch {
	case strings.HasPrefix(output, config.AuditSQLitePrefix):
		store, err := sqlite.OpenAuditStore(strings.TrimPrefix(output, config.AuditSQLitePrefix))
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()
		return store.Query(ctx, filter)

	case strings.HasPrefix(output, config.AuditFilePrefix):
		path := strings.TrimPrefix(output, config.AuditFilePrefix)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		defer func() { _ = f.Close() }()
		return queryAuditLines(ctx, f, filter)

	default:
		return nil, fmt.Errorf("audit output %q cannot be read back; use file:// or sqlite://", output)
	}
}

// queryAuditLines loads a JSON-lines audit log into a ring buffer sized to
// the limit and queries it. Unparsable lines are skipped.
func queryAuditLines(ctx context.Context, r io.Reader, filter audit.Filter) ([]audit.Record, error) {
	// Filtering happens after loading, so keep more than the limit.
	ring := memory.NewAuditStore(io.Discard, filter.EffectiveLimit()*100)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if err := ring.Append(ctx, rec); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}
	return ring.Query(ctx, filter)
}

func printAuditTable(w io.Writer, records []audit.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tIDENTITY\tTOOL\tDECISION\tOUTCOME\tRULE\tLATENCY")
	for _, r := range records {
		rule := r.Rule
		if rule == "" {
			rule = "-"
		}
		outcome := r.Outcome
		if r.ErrorKind != "" {
			outcome += " (" + r.ErrorKind + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.IdentityID,
			r.ToolName,
			r.Decision,
			outcome,
			rule,
			(time.Duration(r.LatencyMicros) * time.Microsecond).String(),
		)
	}
	return tw.Flush()
}
