package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"haulplan.ai/internal/persistence/snapshot"
)

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect snapshot files",
	}

	var headerOnly, asJSON bool
	inspect := &cobra.Command{
		Use:   "inspect <path.snap.zst>",
		Short: "Print a snapshot's header, counts and postings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if headerOnly {
				hdr, err := snapshot.ReadHeader(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(hdr)
				}
				fmt.Fprintf(out, "snapshot v%d world=%s tick=%d save=%s\n", hdr.Version, hdr.WorldID, hdr.Tick, hdr.SaveID)
				return nil
			}

			snap, err := snapshot.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			sum := summarize(snap)
			if asJSON {
				return json.NewEncoder(out).Encode(sum)
			}
			fmt.Fprintf(out, "snapshot v%d world=%s tick=%d save=%s seed=%d regions=%d items=%d workers=%d reservations=%d\n",
				snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Header.SaveID, snap.Seed,
				sum.Regions, sum.Items, sum.Workers, sum.Reservations)
			if snap.Haul == nil {
				fmt.Fprintln(out, "  no haul state")
				return nil
			}
			fmt.Fprintf(out, "  haul format=%d next_posting=%d\n", snap.Haul.FormatVersion, snap.Haul.NextPostingID)
			for _, p := range sum.Postings {
				fmt.Fprintf(out, "  posting %d region=%d records=%d items=%d destinations=%d\n",
					p.ID, p.Region, p.Records, p.Items, p.Destinations)
			}
			return nil
		},
	}
	inspect.Flags().BoolVar(&headerOnly, "header", false, "decode only the header line")
	inspect.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(inspect)
	return cmd
}

type snapshotSummary struct {
	Header       snapshot.Header  `json:"header"`
	Regions      int              `json:"regions"`
	Items        int              `json:"items"`
	Workers      int              `json:"workers"`
	ActiveJobs   int              `json:"active_jobs"`
	Reservations int              `json:"reservations"`
	Postings     []postingSummary `json:"postings"`
}

type postingSummary struct {
	ID     int `json:"id"`
	Region int `json:"region"`
	// Destinations is -1 when the posting has never been searched.
	Destinations int `json:"destinations"`
	Records      int `json:"records"`
	Items        int `json:"items"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	sum := snapshotSummary{
		Header:       snap.Header,
		Regions:      len(snap.Regions),
		Items:        len(snap.Items),
		Workers:      len(snap.Workers),
		Reservations: len(snap.Reservations),
	}
	for _, w := range snap.Workers {
		if w.Job != nil {
			sum.ActiveJobs++
		}
	}
	if snap.Haul == nil {
		return sum
	}
	for _, reg := range snap.Haul.Registries {
		for _, p := range reg.Postings {
			ps := postingSummary{ID: p.ID, Region: p.RegionID, Records: len(p.Records), Destinations: -1}
			if p.HasDestinations {
				ps.Destinations = len(p.Destinations)
			}
			for _, r := range p.Records {
				ps.Items += len(r.Items)
			}
			sum.Postings = append(sum.Postings, ps)
		}
	}
	sort.Slice(sum.Postings, func(i, j int) bool { return sum.Postings[i].ID < sum.Postings[j].ID })
	return sum
}
