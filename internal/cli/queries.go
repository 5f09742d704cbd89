package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sahajakrushi/krushi-cli/internal/api"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
	"github.com/sahajakrushi/krushi-cli/internal/escalation"
	"github.com/sahajakrushi/krushi-cli/internal/output"
)

func newQueriesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queries",
		Aliases: []string{"query"},
		Short:   "Raise and follow advisory queries",
	}
	cmd.AddCommand(
		newQueriesListCmd(opts),
		newQueriesSummaryCmd(opts),
		newQueriesSubmitCmd(opts),
		newQueriesEscalateCmd(opts),
	)
	return cmd
}

func newQueriesListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the farmer's queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			code, err := a.farmerCode()
			if err != nil {
				return err
			}
			queries, err := a.api.ListQueries(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("failed to load queries: %w", err)
			}

			docs := output.NewQueryDocs(queries, escalation.NewWindow(a.clock))
			if opts.raw {
				return output.PrintJSON(a.out, docs)
			}
			output.PrintQueries(a.out, docs)
			return nil
		},
	}
}

func newQueriesSummaryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count queries by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			code, err := a.farmerCode()
			if err != nil {
				return err
			}
			summary, err := a.api.QuerySummary(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("failed to load query summary: %w", err)
			}
			if opts.raw {
				return output.PrintJSON(a.out, summary)
			}
			output.PrintSummary(a.out, summary)
			return nil
		},
	}
}

func newQueriesSubmitCmd(opts *globalOptions) *cobra.Command {
	var q api.NewQuery
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a query with optional photo, audio or video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			if q.FarmerCode, err = a.farmerCode(); err != nil {
				return err
			}
			if err := a.api.SubmitQuery(cmd.Context(), q); err != nil {
				return fmt.Errorf("failed to submit query: %w", err)
			}
			a.api.WaitBackground()
			fmt.Fprintln(a.out, "Query submitted.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&q.Description, "description", "d", "", "Describe the problem")
	cmd.Flags().StringVar(&q.ImagePath, "image", "", "Photo to attach")
	cmd.Flags().StringVar(&q.AudioPath, "audio", "", "Voice note to attach")
	cmd.Flags().StringVar(&q.VideoPath, "video", "", "Video to attach")
	return cmd
}

func newQueriesEscalateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "escalate [query-id]",
		Short: "Escalate an unanswered query",
		Long:  "A query can be escalated once it has waited two minutes without an answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			code, err := a.farmerCode()
			if err != nil {
				return err
			}
			queries, err := a.api.ListQueries(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("failed to load queries: %w", err)
			}

			id := domain.ID(args[0])
			var query *domain.Query
			for i := range queries {
				if queries[i].ID == id {
					query = &queries[i]
					break
				}
			}
			if query == nil {
				return fmt.Errorf("query %s not found", id)
			}

			esc := escalation.NewEscalator(escalation.NewWindow(a.clock), a.api, a.log)
			if err := esc.Escalate(cmd.Context(), *query); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Query %s escalated.\n", id)
			return nil
		},
	}
}
