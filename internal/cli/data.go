package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/bizstore/internal/fallback"
	"github.com/kilupskalvis/bizstore/internal/models"
)

var (
	queryFilters []string
	queryOrder   string
	queryDesc    bool
	queryLimit   int
	queryPage    int
)

var queryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "Read rows from a table",
	Long: `Read rows from a table through the fallback router.

Filter values are parsed as JSON when possible, so --filter qty=3 matches
the number 3 and --filter note=null matches a missing value.

Examples:
  bizstore query products
  bizstore query sales --filter business_id=b1 --order created_at --desc
  bizstore query customers --limit 20 --page 2`,
	Args: cobra.ExactArgs(1),
	Run:  runQuery,
}

var insertCmd = &cobra.Command{
	Use:   "insert <table> <json>",
	Short: "Insert one row or an array of rows",
	Long: `Insert rows into a table. The payload is a JSON object or an array
of objects. Rows without an id are assigned one by whichever store accepts
the write.`,
	Args: cobra.ExactArgs(2),
	Run:  runInsert,
}

var updateCmd = &cobra.Command{
	Use:   "update <table> <id> <json>",
	Short: "Merge a JSON patch into one row",
	Args:  cobra.ExactArgs(3),
	Run:   runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table> <id>",
	Short: "Delete one row",
	Args:  cobra.ExactArgs(2),
	Run:   runDelete,
}

var upsertCmd = &cobra.Command{
	Use:   "upsert <table> <json>",
	Short: "Insert or replace one row by id",
	Args:  cobra.ExactArgs(2),
	Run:   runUpsert,
}

func init() {
	queryCmd.Flags().StringArrayVarP(&queryFilters, "filter", "f", nil, "Equality filter column=value (repeatable)")
	queryCmd.Flags().StringVar(&queryOrder, "order", "", "Column to order by")
	queryCmd.Flags().BoolVar(&queryDesc, "desc", false, "Order descending")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Page size (0 means no limit)")
	queryCmd.Flags().IntVar(&queryPage, "page", 0, "Zero-based page number, used with --limit")
}

func runQuery(cmd *cobra.Command, args []string) {
	q, err := buildQuery(queryFilters, queryOrder, queryDesc, queryLimit, queryPage)
	if err != nil {
		exitError("%v", err)
	}

	c := initContext()
	defer c.Close()

	res, err := c.App.Router.Execute(context.Background(), models.QueryOp(args[0], q))
	if err != nil {
		exitError("%v", err)
	}
	printResult(res)
}

func runInsert(cmd *cobra.Command, args []string) {
	records, err := parseRecords(args[1])
	if err != nil {
		exitError("%v", err)
	}

	c := initContext()
	defer c.Close()

	res, err := c.App.Router.Execute(context.Background(), models.InsertOp(args[0], records...))
	if err != nil {
		exitError("%v", err)
	}
	printResult(res)
}

func runUpdate(cmd *cobra.Command, args []string) {
	patch, err := parseRecord(args[2])
	if err != nil {
		exitError("%v", err)
	}

	c := initContext()
	defer c.Close()

	res, err := c.App.Router.Execute(context.Background(), models.UpdateOp(args[0], args[1], patch))
	if err != nil {
		exitError("%v", err)
	}
	printResult(res)
}

func runDelete(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	res, err := c.App.Router.Execute(context.Background(), models.DeleteOp(args[0], args[1]))
	if err != nil {
		exitError("%v", err)
	}
	color.New(color.FgGreen).Printf("Deleted %s from %s", args[1], args[0])
	fmt.Printf(" (%s)\n", res.Source)
}

func runUpsert(cmd *cobra.Command, args []string) {
	record, err := parseRecord(args[1])
	if err != nil {
		exitError("%v", err)
	}

	c := initContext()
	defer c.Close()

	res, err := c.App.Router.Execute(context.Background(), models.UpsertOp(args[0], record))
	if err != nil {
		exitError("%v", err)
	}
	printResult(res)
}

// buildQuery turns command-line flags into a Query.
func buildQuery(filters []string, order string, desc bool, limit, page int) (models.Query, error) {
	var q models.Query
	for _, f := range filters {
		col, raw, ok := strings.Cut(f, "=")
		if !ok || col == "" {
			return q, fmt.Errorf("invalid filter %q (expected column=value)", f)
		}
		if q.Filters == nil {
			q.Filters = map[string]any{}
		}
		q.Filters[col] = parseValue(raw)
	}
	if order != "" {
		q.Order = &models.Order{Column: order, Descending: desc}
	}
	if limit < 0 || page < 0 {
		return q, fmt.Errorf("limit and page must not be negative")
	}
	q.Limit = limit
	q.Page = page
	return q, nil
}

// parseValue reads raw as JSON, falling back to the plain string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func parseRecord(raw string) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	if rec == nil {
		rec = models.Record{}
	}
	return rec, nil
}

func parseRecords(raw string) ([]models.Record, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var recs []models.Record
		if err := json.Unmarshal([]byte(trimmed), &recs); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		return recs, nil
	}
	rec, err := parseRecord(trimmed)
	if err != nil {
		return nil, err
	}
	return []models.Record{rec}, nil
}

func printResult(res fallback.Result) {
	if res.Source == fallback.SourceLocal {
		color.New(color.FgYellow).Fprintf(os.Stderr, "served from local store\n")
	}
	records := res.Records
	if records == nil {
		records = []models.Record{}
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		exitError("failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
