package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"pocusai/internal/usage"
)

func newUsageCmd(configPath *string) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show anonymous usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsage(cmd, *configPath, top)
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 5, "number of topics to show")
	return cmd
}

func runUsage(cmd *cobra.Command, configPath string, top int) error {
	a, err := openApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	counters, err := a.usage.Snapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("load usage: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total messages: %d\n", counters.TotalMessages)
	fmt.Fprintf(out, "Last active:    %s\n", counters.LastActive.Local().Format("2006-01-02 15:04"))

	fmt.Fprintln(out, "\nTop topics:")
	for i, tc := range usage.TopTopics(counters, top) {
		fmt.Fprintf(out, "  %d. %s (%d)\n", i+1, tc.Topic, tc.Count)
	}

	hours := make([]int, 0, len(counters.HourlyUsage))
	for h := range counters.HourlyUsage {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	fmt.Fprintln(out, "\nBy hour:")
	for _, h := range hours {
		if counters.HourlyUsage[h] == 0 {
			continue
		}
		fmt.Fprintf(out, "  %02d:00  %d\n", h, counters.HourlyUsage[h])
	}
	return nil
}
