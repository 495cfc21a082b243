package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/app"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/ui"
)

func newStatusCmd(g *globals) *cobra.Command {
	var (
		jsonOutput bool
		watch      bool
		noIndex    bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth, dead letters and store counts",
		Long: `Show how many commands are waiting, how many messages were set aside as
malformed, and how many records and indexed documents exist.

The index count needs the index, which a running server holds. Use
--no-index to skip it, or --watch for a live panel that keeps polling.`,
		Example: `  docindex status
  docindex status --watch --interval 2s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}

			if watch {
				dir, _ := g.projectDir()
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				readStatus := func(ctx context.Context) (app.Status, error) {
					return a.Status(ctx, !noIndex)
				}
				err := ui.RunDashboard(ctx, cmd.OutOrStdout(), readStatus, interval, "docindex • "+filepath.Base(dir))
				if !errors.Is(err, ui.ErrNotTerminal) {
					return err
				}
				// Not a terminal: fall through to a single snapshot.
			}

			st, err := a.Status(cmd.Context(), !noIndex)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(st)
			}
			printStatus(out, st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep refreshing in a live panel")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip the index document count")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Refresh interval for --watch")

	return cmd
}

func printStatus(out *output.Writer, st app.Status) {
	if st.ServerPID != 0 {
		out.Statusf("", "Server:        running (pid %d)", st.ServerPID)
	} else {
		out.Statusf("", "Server:        not running")
	}
	out.Statusf("", "Queue depth:   %d", st.QueueDepth)
	if st.DeadLetters > 0 {
		out.Warningf("Dead letters:  %d (see 'docindex dead-letters')", st.DeadLetters)
	} else {
		out.Statusf("", "Dead letters:  %d", st.DeadLetters)
	}
	out.Statusf("", "Records:       %d", st.Records)
	switch {
	case st.IndexError != "":
		out.Warningf("Documents:     unavailable (%s)", st.IndexError)
	default:
		out.Statusf("", "Documents:     %d", st.Documents)
	}
}
