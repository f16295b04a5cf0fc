package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"haulplan.ai/internal/persistence/indexdb"
)

func newIndexCommand(opts *rootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Query a server's sqlite index",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "index path (default: <data>/worlds/<world>/index/world.sqlite)")

	open := func() (*sql.DB, error) {
		path := dbPath
		if path == "" {
			path = filepath.Join(opts.v.GetString(cfgKeyData), "worlds", opts.v.GetString(cfgKeyWorld), "index", "world.sqlite")
		}
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return indexdb.OpenReadOnly(path)
	}

	var status string
	var asJSON bool
	postings := &cobra.Command{
		Use:   "postings",
		Short: "List indexed postings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			rows, err := indexdb.Postings(cmd.Context(), db, status)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(rows)
			}
			for _, r := range rows {
				removed := ""
				if r.Removed {
					removed = " removed"
				}
				fmt.Fprintf(out, "posting %d region=%d status=%s tick=%d%s\n", r.PostingID, r.Region, r.Status, r.Tick, removed)
				for _, rec := range r.Records {
					fmt.Fprintf(out, "  %-24s effective=%d moved=%d remaining=%d\n", rec.Label, rec.Effective, rec.Moved, rec.Remaining)
				}
			}
			return nil
		},
	}
	postings.Flags().StringVar(&status, "status", "", "only postings in this status (e.g. IN_PROGRESS)")
	postings.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	audits := &cobra.Command{
		Use:   "audits <posting_id>",
		Short: "Print a posting's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("posting id: %w", err)
			}
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			entries, err := indexdb.Audits(cmd.Context(), db, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%8d %-14s item=%s worker=%s count=%d %s\n", e.Tick, e.Event, e.Item, e.Worker, e.Count, e.Detail)
			}
			return nil
		},
	}

	cmd.AddCommand(postings, audits)
	return cmd
}
