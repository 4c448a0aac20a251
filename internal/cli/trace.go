package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/harpi/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal    string
	Generation string
	Machine    int // -1 for every machine
	After      int64
	Limit      int
}

// TraceResult is what the journal holds for the selected filter.
type TraceResult struct {
	Reloads     []journal.Reload     `json:"reloads"`
	Transitions []journal.Transition `json:"transitions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled reloads and transitions",
		Long: `Read the journal written by "harpi run --journal" and list configuration
reloads and state machine transitions in sequence order.

Examples:
  harpi trace --journal /var/lib/harpi/journal.db
  harpi trace --journal ./journal.db --machine 3 --limit 20
  harpi trace --journal ./journal.db --generation 0190f7c2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Generation, "generation", "", "only entries of this generation")
	cmd.Flags().IntVar(&opts.Machine, "machine", -1, "only transitions of this state machine")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with a larger sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries per list (0 = no limit)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Machine < -1 || opts.Machine > 0xFFFF {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --machine %d", opts.Machine))
	}

	if _, err := os.Stat(opts.Journal); err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	filter := journal.Filter{
		Generation: opts.Generation,
		AfterSeq:   opts.After,
		Limit:      opts.Limit,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result TraceResult
	if opts.Machine < 0 {
		if result.Reloads, err = j.Reloads(ctx, filter); err != nil {
			return WrapExitError(ExitCommandError, "failed to read reloads", err)
		}
	} else {
		// Reloads are not tied to a machine.
		result.Reloads = []journal.Reload{}
		id := uint16(opts.Machine)
		filter.StateMachine = &id
	}
	if result.Transitions, err = j.Transitions(ctx, filter); err != nil {
		return WrapExitError(ExitCommandError, "failed to read transitions", err)
	}

	formatter.VerboseLog("journal %s: %d reload(s), %d transition(s)", opts.Journal, len(result.Reloads), len(result.Transitions))
	return formatter.Success(result)
}

func (r TraceResult) String() string {
	var b strings.Builder

	b.WriteString("=== Reloads ===\n")
	if len(r.Reloads) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, rl := range r.Reloads {
		status := "ok"
		if !rl.OK {
			status = "failed: " + rl.Error
		}
		fmt.Fprintf(&b, "  #%d %s %s generation=%s sources=[%s]\n",
			rl.Seq, rl.RecordedAt.Format(time.RFC3339), status,
			orDash(rl.Generation), strings.Join(rl.Sources, " "))
	}

	b.WriteString("\n=== Transitions ===\n")
	if len(r.Transitions) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, t := range r.Transitions {
		fmt.Fprintf(&b, "  #%d %s machine %d: %d -> %d on event %d",
			t.Seq, t.RecordedAt.Format(time.RFC3339), t.StateMachineID, t.FromState, t.ToState, t.EventSetID)
		if len(t.ActionSets) > 0 {
			fmt.Fprintf(&b, " actions %v", t.ActionSets)
		}
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
