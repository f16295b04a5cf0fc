package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	persistlog "haulplan.ai/internal/persistence/log"
	"haulplan.ai/internal/persistence/snapshot"
	"haulplan.ai/internal/sim/world"
)

var errStopReplay = errors.New("stop")

func newReplayCommand(opts *rootOptions) *cobra.Command {
	var (
		snapPath string
		worldDir string
		toTick   uint64
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run logged ticks from a snapshot and verify every digest",
		Long: `Restore the world from --snapshot, then apply the operator commands of
every logged tick after it and compare each tick's state digest with the log.

Exit codes:
  0 - every checked digest matched
  1 - divergence detected
  2 - command error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := opts.catalogs()
			if err != nil {
				return err
			}
			tune, err := opts.tuning()
			if err != nil {
				return err
			}
			snap, err := snapshot.ReadSnapshot(snapPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			if worldDir == "" {
				id := snap.Header.WorldID
				if id == "" {
					id = opts.v.GetString(cfgKeyWorld)
				}
				worldDir = filepath.Join(opts.v.GetString(cfgKeyData), "worlds", id)
			}

			w, err := world.NewFromSnapshot(world.WorldConfig{ID: snap.Header.WorldID, Tuning: tune}, cats, opts.logger(cmd), snap)
			if err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			rp := world.NewReplayer(w)
			err = persistlog.EachTick(worldDir, func(e world.TickLogEntry) error {
				if toTick != 0 && e.Tick > toTick {
					return errStopReplay
				}
				if err := rp.Step(e); err != nil {
					return mismatchError{msg: err.Error()}
				}
				return nil
			})
			if err != nil && !errors.Is(err, errStopReplay) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replay ok: checked=%d skipped=%d (from snapshot tick=%d)\n", rp.Checked, rp.Skipped, snap.Header.Tick)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapPath, "snapshot", "", "path to .snap.zst (required)")
	_ = cmd.MarkFlagRequired("snapshot")
	cmd.Flags().StringVar(&worldDir, "world-dir", "", "world directory holding ticks/ (default: <data>/worlds/<snapshot world id>)")
	cmd.Flags().Uint64Var(&toTick, "to-tick", 0, "stop after this tick (inclusive, optional)")
	return cmd
}
