package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/state"
)

func newQueriesCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Manage saved queries",
	}

	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				qs, err := a.service.ListSavedQueries(ctx)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(map[string]any{"saved_queries": qs})
				}
				out.SavedQueries(qs)
				return nil
			})
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	save := &cobra.Command{
		Use:   "save <name> <payload-json>",
		Short: "Save or overwrite a query payload",
		Long: `Save or overwrite a named query. The payload is any JSON object and is
stored verbatim.

Example:
  amanrag queries save ny-law '{"query":"governing law New York","k":5}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				if err := a.service.SaveQuery(ctx, args[0], payload); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Saved query %s", args[0])
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				if err := a.service.DeleteQuery(ctx, args[0]); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Deleted query %s", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, save, del)
	return cmd
}

func newWatchlistsCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlists",
		Short: "Manage watchlists of document ids",
	}

	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List watchlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				ws, err := a.service.ListWatchlists(ctx)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(map[string]any{"watchlists": ws})
				}
				out.Watchlists(ws)
				return nil
			})
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	save := &cobra.Command{
		Use:   "save <name> <doc-id>...",
		Short: "Save or overwrite a watchlist",
		Long:  "Save or overwrite a named watchlist. Duplicate ids are dropped, first occurrence kept.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ids := args[0], args[1:]
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				if err := a.service.SaveWatchlist(ctx, name, ids); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Saved watchlist %s (%d ids)", name, len(ids))
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, global, func(ctx context.Context, a *app) error {
				if err := a.service.DeleteWatchlist(ctx, args[0]); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Deleted watchlist %s", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, save, del)
	return cmd
}

// parsePayload decodes a saved query payload, which must be a JSON object.
func parsePayload(raw string) (state.Payload, error) {
	var payload state.Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload == nil {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("payload is %s", raw)
		}
		return nil, amerrors.ValidationError("payload must be a JSON object", cause).
			WithSuggestion(`Quote the payload, e.g. '{"query":"indemnity"}'`)
	}
	return payload, nil
}
