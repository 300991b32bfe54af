package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventvault/common/redisutil"
	"github.com/telhawk-systems/eventvault/pipeline/internal/topicstats"
)

var statsCmd = &cobra.Command{
	Use:   "stats [topic]",
	Short: "Show per-topic consumption stats",
	Long: `Show per-topic consumption stats recorded in Redis by every pipeline
instance. Without a topic, the known topics are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled {
			return fmt.Errorf("topic stats require redis.enabled")
		}
		ctx := contextOf(cmd)
		client, err := redisutil.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		return showStats(ctx, cmd, topicstats.NewClient(client, "cli"), args)
	},
}

func showStats(ctx context.Context, cmd *cobra.Command, client *topicstats.Client, args []string) error {
	if len(args) == 1 {
		stats, err := client.GetStats(ctx, args[0])
		if err != nil {
			return err
		}
		return printOutput(cmd, stats)
	}

	topics, err := client.ListTopics(ctx)
	if err != nil {
		return err
	}
	sort.Strings(topics)
	if topics == nil {
		topics = []string{}
	}
	return printOutput(cmd, topics)
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
