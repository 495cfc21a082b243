package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/records"
	"github.com/Aman-CERP/docindex/internal/search"
)

func newSearchCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the index",
		Long: `Query the full-text index directly.

The index can be held by only one process. While 'docindex serve' or
'docindex worker' runs for this project, query its HTTP API instead.`,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	cmd.AddCommand(newSearchFieldsCmd(g, &jsonOutput))
	cmd.AddCommand(newSearchNameCmd(g, &jsonOutput))
	cmd.AddCommand(newSearchHeightCmd(g, &jsonOutput))

	return cmd
}

func newSearchFieldsCmd(g *globals, jsonOutput *bool) *cobra.Command {
	var (
		f              search.Fields
		dob            string
		yearsAtAddress int
		height         int
		married        bool
	)

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Exact match on any combination of fields",
		Example: `  docindex search fields --last-name Smith --gender Female
  docindex search fields --dob 1980-01-31 --married=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("dob") {
				t, err := time.Parse(records.DateLayout, dob)
				if err != nil {
					return fmt.Errorf("--dob must be a date like %s", records.DateLayout)
				}
				f.DateOfBirth = &t
			}
			if flags.Changed("years-at-address") {
				f.YearsAtAddress = &yearsAtAddress
			}
			if flags.Changed("height") {
				f.HeightInInches = &height
			}
			if flags.Changed("married") {
				f.IsMarried = &married
			}
			return runSearch(cmd, g, *jsonOutput, func(e *search.Engine) (*search.SearchResult, error) {
				return e.SearchByFields(cmd.Context(), f)
			})
		},
	}

	cmd.Flags().StringVar(&f.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&f.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&f.EmailAddress, "email", "", "Email address")
	cmd.Flags().StringVar(&f.Gender, "gender", "", "Gender")
	cmd.Flags().StringVar(&dob, "dob", "", "Date of birth ("+records.DateLayout+")")
	cmd.Flags().IntVar(&yearsAtAddress, "years-at-address", 0, "Years at current address")
	cmd.Flags().IntVar(&height, "height", 0, "Height in inches")
	cmd.Flags().BoolVar(&married, "married", false, "Marital status")

	return cmd
}

func newSearchNameCmd(g *globals, jsonOutput *bool) *cobra.Command {
	var gender string

	cmd := &cobra.Command{
		Use:   "name [NAME]",
		Short: "Partial match on first or last name, optionally by gender",
		Args:  cobra.MaximumNArgs(1),
		Example: `  docindex search name "jo sm"
  docindex search name ann --gender Female`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return runSearch(cmd, g, *jsonOutput, func(e *search.Engine) (*search.SearchResult, error) {
				return e.SearchByPartialNameAndGender(cmd.Context(), name, gender)
			})
		},
	}

	cmd.Flags().StringVar(&gender, "gender", "", "Gender")

	return cmd
}

func newSearchHeightCmd(g *globals, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "height MIN MAX",
		Short:   "Inclusive height range in inches",
		Args:    cobra.ExactArgs(2),
		Example: `  docindex search height 60 72`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lo, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("MIN must be an integer, got %q", args[0])
			}
			hi, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("MAX must be an integer, got %q", args[1])
			}
			return runSearch(cmd, g, *jsonOutput, func(e *search.Engine) (*search.SearchResult, error) {
				return e.SearchByHeightRange(cmd.Context(), lo, hi)
			})
		},
	}
}

func runSearch(cmd *cobra.Command, g *globals, jsonOutput bool, query func(*search.Engine) (*search.SearchResult, error)) error {
	defer func() { _ = g.shutdown() }()
	a, err := g.open(cmd, logOneShot)
	if err != nil {
		return err
	}
	engine, err := a.Engine()
	if err != nil {
		return err
	}
	res, err := query(engine)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(res)
	}
	out.Records(res.Records, res.Count)
	return nil
}
