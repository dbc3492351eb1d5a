package main

import (
	"fmt"

	"github.com/fdbrl/recordlayer/scrub"
	"github.com/spf13/cobra"
)

// newRootCmd builds rlctl's command tree over r. Each subcommand is a thin
// flag-parsing shell around one Runner method, following cobra's usual
// one-command-per-verb layout.
func newRootCmd(r *Runner) *cobra.Command {
	root := &cobra.Command{
		Use:   "rlctl",
		Short: "Administer record-layer secondary indexes",
	}
	root.PersistentFlags().IntVar(&r.shardSize, "shard-size", 0, "records per online-build shard (0 = default)")
	root.PersistentFlags().DurationVar(&r.throttle, "throttle", 0, "pause between build shards (0 = default)")
	root.PersistentFlags().IntVar(&r.batchSize, "batch-size", 0, "records/entries per scrub transaction (0 = default)")

	root.AddCommand(
		newDisableCmd(r),
		newEnableCmd(r),
		newMakeReadableCmd(r),
		newBuildCmd(r),
		newRebuildCmd(r),
		newScrubCmd(r),
		newStatusCmd(r),
	)
	return root
}

func newDisableCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <index>",
		Short: "Move an index to DISABLED (stop all maintenance)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.disable(args[0])
		},
	}
}

func newEnableCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <index>",
		Short: "Move an index to WRITE_ONLY (maintain writes, not yet queryable)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.enable(args[0])
		},
	}
}

func newMakeReadableCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "make-readable <index>",
		Short: "Move an index to READABLE (available to the planner)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.makeReadable(args[0])
		},
	}
}

func newBuildCmd(r *Runner) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "build-index <index>",
		Short: "Backfill an index over its entity's existing records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := r.buildIndex(cmd.Context(), args[0], entity)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shards: %d total, %d completed, %d failed (done=%t)\n",
				res.ShardsTotal, res.ShardsCompleted, res.ShardsFailed, res.Done())
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "record type to build over (required for multi-entity indexes)")
	return cmd
}

func newRebuildCmd(r *Runner) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "rebuild-index <index>",
		Short: "Clear an index and its build progress, dropping it to WRITE_ONLY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.rebuildIndex(cmd.Context(), args[0], entity)
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "record type to rebuild over (required for multi-entity indexes)")
	return cmd
}

func newScrubCmd(r *Runner) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "scrub <index>",
		Short: "Verify an index against its records (dangling + missing entries)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dangling, err := r.scrubDangling(cmd.Context(), args[0], repair)
			if err != nil {
				return err
			}
			printScrubMetrics(cmd, dangling)

			missing, err := r.scrubMissing(cmd.Context(), args[0], repair)
			if err != nil {
				return err
			}
			printScrubMetrics(cmd, missing)
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "clear dangling entries / write missing entries as they're found")
	return cmd
}

func printScrubMetrics(cmd *cobra.Command, m scrub.Metrics) {
	if m.Skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped (%s)\n", m.Phase, m.SkipReason)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: scanned=%d dangling=%d missing=%d repaired=%d duration=%s\n",
		m.Phase, m.EntriesScanned+m.RecordsScanned, m.DanglingEntries, m.MissingEntries, m.Repaired, m.BatchDuration)
}

func newStatusCmd(r *Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status <index>",
		Short: "Show an index's lifecycle state and breaker health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, snap, err := r.status(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state=%s breaker=%s successes=%d failures=%d consecutive=%d\n",
				state, snap.State, snap.TotalSuccesses, snap.TotalFailures, snap.ConsecutiveFailures)
			return nil
		},
	}
}
