package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventvault/pipeline/internal/handlers"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/replay"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect dead-lettered failures",
}

var dlqListCmd = &cobra.Command{
	Use:     "list <domain|system>",
	Aliases: []string{"ls"},
	Short:   "List dead-letter records in a time window",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseDLQKind(args[0])
		if err != nil {
			return err
		}
		fromFlag, _ := cmd.Flags().GetString("from")
		toFlag, _ := cmd.Flags().GetString("to")
		from, to, err := parseWindow(fromFlag, toFlag, time.Now().UTC())
		if err != nil {
			return err
		}

		rt, err := buildRuntime(contextOf(cmd), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()
		return listDLQ(cmd, rt.pipeline.DLQ, kind, from, to)
	},
}

var dlqGetCmd = &cobra.Command{
	Use:   "get <domain|system> <dlq-id>",
	Short: "Show one dead-letter record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseDLQKind(args[0])
		if err != nil {
			return err
		}
		rt, err := buildRuntime(contextOf(cmd), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()
		return getDLQ(cmd, rt.pipeline.DLQ, kind, args[1])
	},
}

// parseWindow defaults an empty from to 24h before now and an empty to to now.
func parseWindow(fromFlag, toFlag string, now time.Time) (time.Time, time.Time, error) {
	from, to := now.Add(-24*time.Hour), now
	if fromFlag != "" {
		t, ok := replay.ParseTime(fromFlag)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q", fromFlag)
		}
		from = t
	}
	if toFlag != "" {
		t, ok := replay.ParseTime(toFlag)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q", toFlag)
		}
		to = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return from, to, nil
}

func listDLQ(cmd *cobra.Command, dlq handlers.DLQReader, kind models.DLQKind, from, to time.Time) error {
	records, err := dlq.FindByWindow(contextOf(cmd), kind, from, to)
	if err != nil {
		return fmt.Errorf("list dlq records: %w", err)
	}
	if records == nil {
		records = []*models.DLQRecord{}
	}
	return printOutput(cmd, records)
}

func getDLQ(cmd *cobra.Command, dlq handlers.DLQReader, kind models.DLQKind, id string) error {
	rec, err := dlq.FindByID(contextOf(cmd), kind, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("dlq record %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("get dlq record: %w", err)
	}
	return printOutput(cmd, rec)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	dlqListCmd.Flags().String("from", "", "window start, RFC3339 or epoch millis (default: 24h ago)")
	dlqListCmd.Flags().String("to", "", "window end, RFC3339 or epoch millis (default: now)")
	dlqCmd.AddCommand(dlqListCmd, dlqGetCmd)
	rootCmd.AddCommand(dlqCmd)
}
