package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCategoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage categories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name...>",
			Short: "Add a category",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					cat, err := a.coord.AddCategory(strings.Join(args, " ")).Wait(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Added category #%d %s\n", cat.ID, cat.Name)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List categories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					categories, err := a.categories.List(ctx)
					if err != nil {
						return err
					}
					if len(categories) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No categories.")
						return nil
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME")
					for _, cat := range categories {
						fmt.Fprintf(tw, "%d\t%s\n", cat.ID, cat.Name)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"delete"},
			Short:   "Delete a category and every task in it",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					cat, err := a.categories.GetByID(ctx, id)
					if err != nil {
						return err
					}
					if cat == nil {
						return fmt.Errorf("category %d not found", id)
					}
					if _, err := a.coord.RemoveCategory(*cat).Wait(ctx); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted category #%d %s\n", cat.ID, cat.Name)
					return nil
				})
			},
		},
	)
	return cmd
}
