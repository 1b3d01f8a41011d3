package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/reedbase/reedbase/internal/exec"
)

func newCreateTableCmd() *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "create-table <name>",
		Short: "Create a new table, optionally with a pipe-delimited column schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cols []string
			if schema != "" {
				cols = strings.Split(schema, "|")
			}
			return db.CreateTable(args[0], cols)
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "pipe-delimited column names, e.g. key|value")
	return cmd
}

func newCreateIndexCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "create-index <table> <column>",
		Short: "Create an index on a table column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.CreateIndex(args[0], args[1], backend)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "hash", "index backend: hash or btree")
	return cmd
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SELECT query and print its result as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := db.Query(args[0])
			if err != nil {
				return err
			}
			if result.Aggregate != nil {
				fmt.Println(*result.Aggregate)
				return nil
			}
			printRows(result.Rows)
			return nil
		},
	}
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run an INSERT, UPDATE, or DELETE statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.Execute(args[0], user)
		},
	}
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <table> <key>",
		Short: "Resolve a structured key via its fallback chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, found, err := db.Lookup(args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no row matches %q or any of its fallbacks", args[1])
			}
			printRows([]exec.Row{row})
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <table>",
		Short: "List a table's committed versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := db.ListVersions(args[0])
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Timestamp", "Action", "User", "Rows", "Size", "Hash"})
			for _, v := range versions {
				t.AppendRow(table.Row{v.Timestamp, v.Action, v.User, v.Rows, v.Size, v.Hash})
			}
			t.Render()
			return nil
		},
	}
}

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <table> <timestamp>",
		Short: "Restore a table to a previously committed version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid timestamp %q: %w", args[1], err)
			}
			return db.Rollback(args[0], ts, user)
		},
	}
}

func newDropTableCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "drop-table <name>",
		Short: "Remove a table and its indices (requires --confirm)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.DropTable(args[0], confirm)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "actually delete the table")
	return cmd
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List every table in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range db.ListTables() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newIndicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indices <table>",
		Short: "List every index on a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Column", "Backend", "Auto", "Usage", "Last Used"})
			for _, m := range db.ListIndices(args[0]) {
				t.AppendRow(table.Row{m.Column, m.Backend, m.AutoCreated, m.UsageCount, m.LastUsed})
			}
			t.Render()
			return nil
		},
	}
}

func newCheckLogCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "check-log <table>",
		Short: "Validate a table's event log, optionally repairing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := db.CheckLog(args[0], repair)
			if err != nil {
				return err
			}
			fmt.Printf("total=%d valid=%d corrupted=%d truncated=%v\n",
				rep.Total, rep.Valid, rep.Corrupted, rep.Truncated)
			if len(rep.CorruptedLineNumbers) > 0 {
				fmt.Printf("corrupted lines: %v\n", rep.CorruptedLineNumbers)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "truncate at the first corrupted line")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate table, index, and query-pattern statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := db.Stats()

			rowCounts := table.NewWriter()
			rowCounts.SetOutputMirror(os.Stdout)
			rowCounts.AppendHeader(table.Row{"Table", "Rows"})
			for name, n := range stats.TableRowCounts {
				rowCounts.AppendRow(table.Row{name, n})
			}
			rowCounts.Render()

			patterns := table.NewWriter()
			patterns.SetOutputMirror(os.Stdout)
			patterns.AppendHeader(table.Row{"Pattern", "Count"})
			for p, n := range stats.QueryCountByPattern {
				patterns.AppendRow(table.Row{p, n})
			}
			patterns.Render()
			return nil
		},
	}
}

func printRows(rows []exec.Row) {
	if len(rows) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	header := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		header = append(header, col)
	}
	sort.Strings(header)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, r := range rows {
		row := make(table.Row, len(header))
		for i, h := range header {
			row[i] = r[h]
		}
		t.AppendRow(row)
	}
	t.Render()
}
