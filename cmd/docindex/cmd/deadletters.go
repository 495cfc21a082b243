package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/output"
)

// deadLetterView is the JSON shape of one dead letter.
type deadLetterView struct {
	ID     string    `json:"id"`
	Reason string    `json:"reason"`
	DeadAt time.Time `json:"dead_at"`
	Body   string    `json:"body"`
}

func newDeadLettersCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List queue messages that could not be decoded",
		Long: `List messages the worker set aside because they did not decode to a
command. They are never retried; inspect them to find the faulty producer.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}
			dead, err := a.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				views := make([]deadLetterView, 0, len(dead))
				for _, d := range dead {
					views = append(views, deadLetterView{ID: d.ID, Reason: d.Reason, DeadAt: d.DeadAt, Body: string(d.Body)})
				}
				return out.JSON(views)
			}

			if len(dead) == 0 {
				out.Success("No dead letters")
				return nil
			}
			for _, d := range dead {
				out.Warningf("%s  %s  %s", d.DeadAt.Format(time.RFC3339), d.ID, d.Reason)
				out.Code(string(d.Body))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
