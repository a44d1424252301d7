package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mutugading/logquery/internal/application/logquery"
	httpdelivery "github.com/mutugading/logquery/internal/delivery/http"
)

// queryFlags maps CLI flags to query parameters.
var queryFlags = []struct {
	flag  string
	param string
	usage string
}{
	{"level", logquery.ParamLevel, "exact level, case-insensitive"},
	{"type", logquery.ParamType, "exact type, case-insensitive"},
	{"message", logquery.ParamMessage, "case-insensitive message substring"},
	{"start-date", logquery.ParamStartDate, "inclusive start date (YYYY-MM-DD)"},
	{"end-date", logquery.ParamEndDate, "inclusive end date (YYYY-MM-DD)"},
	{"page", logquery.ParamPage, "1-based page number"},
	{"limit", logquery.ParamLimit, "page size"},
	{"sort-order", logquery.ParamSortOrder, "asc or desc"},
}

func queryCmd() *cobra.Command {
	values := make(map[string]*string, len(queryFlags))

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one log query and print the JSON result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := logquery.Params{}
			for _, f := range queryFlags {
				if cmd.Flags().Changed(f.flag) {
					params[f.param] = *values[f.flag]
				}
			}
			return runQuery(cmd, params)
		},
	}

	for _, f := range queryFlags {
		values[f.flag] = cmd.Flags().String(f.flag, "", f.usage)
	}
	return cmd
}

func runQuery(cmd *cobra.Command, params logquery.Params) error {
	a, err := newApp(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.builder.Build(params)
	if err != nil {
		return err
	}

	page, err := a.service.List(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(httpdelivery.NewListResponse(page))
}
