package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/harpi/internal/csvconfig"
	"github.com/roach88/harpi/internal/ir"
	"github.com/roach88/harpi/internal/rules"
)

// ValidationResult summarizes an accepted configuration directory.
type ValidationResult struct {
	Valid    bool                   `json:"valid"`
	Dir      string                 `json:"dir"`
	Sources  []csvconfig.SourceInfo `json:"sources"`
	Counts   map[string]int         `json:"counts"`
	Machines int                    `json:"machines"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Configuration valid: %d source(s), %d state machine(s)\n", len(r.Sources), r.Machines)
	for _, s := range r.Sources {
		fmt.Fprintf(&b, "  %-24s %4d line(s) %4d record(s)\n", s.Name, s.Lines, s.Records)
	}
	for _, k := range ir.Kinds {
		fmt.Fprintf(&b, "  %-24s %4d\n", k.String(), r.Counts[k.String()])
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Check a configuration directory without running it",
		Long: `Ingest every *.csv file in a directory and build the rule tables.

Reports the record counts per section, or the first line that failed
to parse with its source file, line number and field.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	l, err := loadDir(dir, rules.UUIDv7Generator{})
	if err != nil {
		return reportLoadError(formatter, err)
	}

	for _, s := range l.Ingest.Sources {
		formatter.VerboseLog("%s: offsets machine=%d action=%d event=%d",
			s.Name, s.Offsets.StateMachine, s.Offsets.ActionSet, s.Offsets.EventSet)
	}

	counts := make(map[string]int, len(ir.Kinds))
	for _, k := range ir.Kinds {
		counts[k.String()] = l.Generation.Counts[k]
	}
	return formatter.Success(ValidationResult{
		Valid:    true,
		Dir:      dir,
		Sources:  l.Ingest.Sources,
		Counts:   counts,
		Machines: len(l.Generation.MachineIDs()),
	})
}
