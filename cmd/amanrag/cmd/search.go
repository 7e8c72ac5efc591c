package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	k           int
	bm25Weight  float64
	faissWeight float64
	filters     store.Filters
	jsonOutput  bool
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the contract corpus",
		Long: `Search the contract corpus with hybrid retrieval.

The keyword (BM25) and semantic rankings are min-max normalized, combined
with the given weights, filtered by metadata and ordered by Reciprocal
Rank Fusion. Documents without metadata always pass filters.

Examples:
  amanrag search "governing law New York"
  amanrag search "limitation of liability" -k 5 --bm25-weight 1 --faiss-weight 0
  amanrag search "auto renewal" --type msa --date-from 2023-01-01 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.Request{
				Query:   strings.Join(args, " "),
				K:       opts.k,
				Filters: opts.filters,
			}
			if cmd.Flags().Changed("bm25-weight") {
				req.BM25Weight = search.Weight(opts.bm25Weight)
			}
			if cmd.Flags().Changed("faiss-weight") {
				req.FaissWeight = search.Weight(opts.faissWeight)
			}
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				return runSearch(ctx, cmd, a.service, req, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of results (default from config, 10)")
	cmd.Flags().Float64Var(&opts.bm25Weight, "bm25-weight", search.DefaultBM25Weight, "Weight of the keyword ranking")
	cmd.Flags().Float64Var(&opts.faissWeight, "faiss-weight", search.DefaultFaissWeight, "Weight of the semantic ranking")
	cmd.Flags().StringVar(&opts.filters.Type, "type", "", "Filter by contract type")
	cmd.Flags().StringVar(&opts.filters.BusinessUnit, "business-unit", "", "Filter by business unit")
	cmd.Flags().StringVar(&opts.filters.Jurisdiction, "jurisdiction", "", "Filter by jurisdiction")
	cmd.Flags().StringVar(&opts.filters.Counterparty, "counterparty", "", "Filter by counterparty")
	cmd.Flags().StringVar(&opts.filters.DateFrom, "date-from", "", "Earliest document date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.filters.DateTo, "date-to", "", "Latest document date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, r search.Retriever, req search.Request, jsonOutput bool) error {
	hits, err := r.Search(ctx, req)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		if hits == nil {
			hits = []search.Hit{}
		}
		return out.JSON(map[string]any{"results": hits})
	}
	out.Hits(req.Query, hits)
	return nil
}

func newStatsCmd(global *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				st, err := a.service.Stats(ctx)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(st)
				}
				out.Stats(st)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")
	return cmd
}
