package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/consultadmin/consultadmin/internal/cli/client"
	"github.com/consultadmin/consultadmin/internal/listing"
	"github.com/consultadmin/consultadmin/internal/session"
)

type listOptions struct {
	serverAlias string
	search      string
	filters     []string
	sortBy      string
	desc        bool
	page        int
	pageSize    int
	output      string
}

// NewListCmd creates the ls command
func NewListCmd(loader RuntimeLoader) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:     "ls <resource>",
		Aliases: []string{"list"},
		Short:   "List records of a resource",
		Long: `List records of a resource with search, filters, sorting and pagination.

Resources: users, providers, seekers, consultations, payments, categories, content

Examples:
  $ consultadmin ls providers --filter status=pending
  $ consultadmin ls users --search ada --sort name
  $ consultadmin ls payments --sort amount --desc --page 2 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(loader)
			if err != nil {
				return err
			}
			return runList(cmd.Context(), rt, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.serverAlias, "server", "", "Server address or alias (uses the selected server if not specified)")
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "Case-insensitive text search")
	cmd.Flags().StringArrayVarP(&opts.filters, "filter", "f", nil, "Only show records where field=value (repeatable)")
	cmd.Flags().StringVar(&opts.sortBy, "sort", "", "Sort by field")
	cmd.Flags().BoolVar(&opts.desc, "desc", false, "Sort in descending order")
	cmd.Flags().IntVar(&opts.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", listing.DefaultPageSize, "Records per page")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json or yaml")

	return cmd
}

func runList(ctx context.Context, rt *Runtime, resourceName string, opts listOptions) error {
	r, err := client.LookupResource(resourceName)
	if err != nil {
		return err
	}
	if err := validateOutput(opts.output); err != nil {
		return err
	}
	filters, err := listing.ParseFilters(opts.filters)
	if err != nil {
		return err
	}

	return rt.withSession(ctx, opts.serverAlias, func(api *client.Client, _ session.Snapshot) error {
		records, err := api.List(ctx, r)
		if err != nil {
			return err
		}

		page := listing.Apply(records, r.Searchable, listing.Query{
			Search:   opts.search,
			Filters:  filters,
			SortBy:   opts.sortBy,
			Desc:     opts.desc,
			Page:     opts.page,
			PageSize: opts.pageSize,
		})
		return writePage(rt.Out, opts.output, r, page)
	})
}
