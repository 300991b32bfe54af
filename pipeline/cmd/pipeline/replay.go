package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Resubmit recorded events through the pipeline",
	Long: `Resubmit previously ingested or dead-lettered events.

Selected events are sorted by timestamp and submitted again without
their previous ingestion identity. Content that was already stored
keeps its original identity.`,
}

func newReplayModeCmd(mode replay.Mode, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   string(mode),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := replayRequestFromFlags(cmd)
			rt, err := buildRuntime(contextOf(cmd), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runReplay(cmd, rt.pipeline.Replay, mode, req)
		},
	}
	c.Flags().String("reason", "", "why the replay is run (required)")
	switch mode {
	case replay.ModeTimeWindow:
		c.Flags().String("from", "", "window start, RFC3339 or epoch millis (inclusive)")
		c.Flags().String("to", "", "window end, RFC3339 or epoch millis (exclusive)")
	case replay.ModeIngestion:
		c.Flags().String("key", "", "ingestion id or snapshot hash")
	case replay.ModeDLQDomain, replay.ModeDLQSystem:
		c.Flags().String("dlq-id", "", "dead-letter record id")
	}
	return c
}

func replayRequestFromFlags(cmd *cobra.Command) models.ReplayRequest {
	str := func(name string) string {
		if cmd.Flags().Lookup(name) == nil {
			return ""
		}
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return models.ReplayRequest{
		Reason:                 str("reason"),
		FromTime:               str("from"),
		ToTime:                 str("to"),
		ObjectKeyOrIngestionID: str("key"),
		DLQID:                  str("dlq-id"),
	}
}

type replayer interface {
	Replay(ctx context.Context, mode replay.Mode, req models.ReplayRequest) models.ReplayResult
}

func runReplay(cmd *cobra.Command, r replayer, mode replay.Mode, req models.ReplayRequest) error {
	result := r.Replay(contextOf(cmd), mode, req)
	if err := printOutput(cmd, result); err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("replay failed: %s", result.Reason)
	}
	return nil
}

func init() {
	replayCmd.AddCommand(
		newReplayModeCmd(replay.ModeTimeWindow, "Replay ingested events created in a time window"),
		newReplayModeCmd(replay.ModeIngestion, "Replay ingested events by ingestion id or snapshot hash"),
		newReplayModeCmd(replay.ModeDLQDomain, "Replay a domain dead-letter record"),
		newReplayModeCmd(replay.ModeDLQSystem, "Replay a system dead-letter record"),
	)
	rootCmd.AddCommand(replayCmd)
}
