package cmd

import (
	"errors"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/daemon"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/preflight"
)

func newDoctorCmd(g *globals) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the system and the project's stores",
		Long: `Check disk space, write permission and the open file limit for the data
directory, then open the queue, the record store and the index.

Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), a.Config.DataDir(), a.Checks()...)

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}
			if checker.HasCriticalFailures(results) {
				return errors.New("one or more required checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")

	return cmd
}

func newStopCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the project's running serve or worker",
		Long: `Send SIGTERM to the process named in the project's PID file. It finishes
its current drain cycle and open HTTP requests, then exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			pid, err := a.PIDFile().Signal(syscall.SIGTERM)
			if errors.Is(err, daemon.ErrPIDFileNotFound) {
				out.Status("", "No docindex process is running for this project")
				return nil
			}
			if err != nil {
				return err
			}
			out.Successf("Sent stop signal to pid %d", pid)
			return nil
		},
	}
}
