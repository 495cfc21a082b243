package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/output"
)

func newWorkerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the indexing worker without the HTTP API",
		Long: `Drain the queue into the index until interrupted.

Cycles run back to back while there is work and sleep for
worker.poll_interval otherwise. With the SQLite backend and
worker.wake_on_write set, a write to the queue cuts the sleep short.
An interrupt lets the current cycle finish before exiting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logService)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			release, err := startService(ctx, cmd, a)
			if err != nil {
				return err
			}
			defer release()

			host, closeHost, err := newWorkerHost(ctx, a)
			if err != nil {
				return err
			}
			defer closeHost()
			return host.Start(ctx)
		},
	}
}

func newDrainCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Run one drain cycle and exit",
		Long: `Apply every queued command to the index in one writer session, then
exit. Useful from cron or after a bulk import.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}
			if _, err := a.Recover(cmd.Context()); err != nil {
				return err
			}
			worker, err := a.Worker()
			if err != nil {
				return err
			}
			res, err := worker.DrainOnce(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			switch {
			case !res.DidWork:
				out.Status("", "Queue is empty; nothing to do")
			default:
				out.Successf("Applied %d command(s)", res.Applied)
				if res.Malformed > 0 {
					out.Warningf("%d malformed message(s) moved to dead letters", res.Malformed)
				}
				if res.Optimized {
					out.Status("", "Index compacted on request")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the drain result as JSON")

	return cmd
}
