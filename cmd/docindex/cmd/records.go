package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/records"
)

func newImportCmd(g *globals) *cobra.Command {
	var optimize bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Store records from a YAML or JSON file and queue them for indexing",
		Long: `Read a list of records from FILE, upsert them into the record store and
queue one index command per record. The index catches up on the next
drain cycle.

Each record needs partition_key and row_key; date_of_birth is a
` + records.DateLayout + ` date.`,
		Args:    cobra.ExactArgs(1),
		Example: `  docindex import people.yaml --optimize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = g.shutdown() }()
			recs, err := records.LoadFile(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}
			producer, err := a.Producer()
			if err != nil {
				return err
			}

			n, err := producer.IndexBatch(cmd.Context(), recs)
			if err != nil {
				return err
			}
			if optimize {
				if err := producer.Optimize(cmd.Context()); err != nil {
					return err
				}
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("Imported %d record(s) from %s", n, args[0])
			out.Status("", "They become searchable after the next drain cycle")
			return nil
		},
	}

	cmd.Flags().BoolVar(&optimize, "optimize", false, "Also queue an index compaction")

	return cmd
}

func newReindexCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index from the record store",
		Long: `Queue a purge of the index, one index command per stored record, and a
compaction. The worker applies them in order on its next cycle.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}
			producer, err := a.Producer()
			if err != nil {
				return err
			}
			n, err := producer.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Queued reindex of %d record(s)", n)
			return nil
		},
	}
}

func newPurgeCmd(g *globals) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every record and queue an index purge",
		Long: `Delete every record from the record store and queue a purge of the
index. The index is not opened, so this works while a server is running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if !yes {
				out.Warning("This deletes every record. Re-run with --yes to confirm.")
				return nil
			}

			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logOneShot)
			if err != nil {
				return err
			}
			repo, err := a.Records()
			if err != nil {
				return err
			}
			producer, err := a.Producer()
			if err != nil {
				return err
			}

			deleted, err := purge(cmd.Context(), repo, producer)
			if err != nil {
				return err
			}
			out.Successf("Deleted %d record(s) and queued an index purge", deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")

	return cmd
}

// purge deletes the records and queues the index purge concurrently.
func purge(ctx context.Context, repo interface {
	DeleteAll(ctx context.Context) (int, error)
}, producer interface {
	PurgeAll(ctx context.Context) error
}) (int, error) {
	var deleted int
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		n, err := repo.DeleteAll(egCtx)
		if err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		deleted = n
		return nil
	})
	eg.Go(func() error {
		return producer.PurgeAll(egCtx)
	})
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return deleted, nil
}
