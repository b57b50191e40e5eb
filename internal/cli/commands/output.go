package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/consultadmin/consultadmin/internal/cli/client"
	"github.com/consultadmin/consultadmin/internal/listing"
)

// Output formats
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// pageView is the serialized form of a listing page
type pageView struct {
	Records    []client.Record `json:"records" yaml:"records"`
	Total      int             `json:"total" yaml:"total"`
	Page       int             `json:"page" yaml:"page"`
	PageSize   int             `json:"page_size" yaml:"page_size"`
	TotalPages int             `json:"total_pages" yaml:"total_pages"`
}

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("invalid output format %q (use table, json or yaml)", format)
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func writePage(w io.Writer, format string, r client.Resource, page listing.Page) error {
	if format != outputTable {
		return writeStructured(w, format, pageView{
			Records:    page.Records,
			Total:      page.Total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: page.TotalPages,
		})
	}

	if page.Total == 0 {
		fmt.Fprintf(w, "No %s found.\n", r.Name)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(r.Columns))
	rules := make([]string, len(r.Columns))
	for i, col := range r.Columns {
		headers[i] = strings.ToUpper(strings.ReplaceAll(col, "_", " "))
		rules[i] = strings.Repeat("─", len(headers[i]))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(rules, "\t"))

	for _, rec := range page.Records {
		cells := make([]string, len(r.Columns))
		for i, col := range r.Columns {
			cells[i] = cell(rec[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nPage %d of %d (%d %s)\n", page.Page, max(page.TotalPages, 1), page.Total, r.Name)
	return nil
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if t == "" {
			return "-"
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
