package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/ratelimit"
	"github.com/foxzi/outreach/internal/storage"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Test email rate limit commands",
}

var ratelimitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured rate limits and current usage",
	RunE:  runRatelimitShow,
}

func init() {
	ratelimitCmd.AddCommand(ratelimitShowCmd)
	rootCmd.AddCommand(ratelimitCmd)
}

func runRatelimitShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printLimits(out, cfg.TestSend.RateLimit)
	if !cfg.TestSend.RateLimit.Enabled {
		return nil
	}

	db, err := storage.OpenReadOnly(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(out, "\nNo usage recorded (%v)\n", err)
		return nil
	}
	defer db.Close()

	stats, err := ratelimit.ReadStats(db)
	if err != nil {
		return fmt.Errorf("failed to read rate limit counters: %w", err)
	}
	printUsage(out, stats)
	return nil
}

func printLimits(out io.Writer, rl config.RateLimitConfig) {
	fmt.Fprintln(out, "Rate Limiting Configuration")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintf(out, "Enabled: %v\n\n", rl.Enabled)

	if !rl.Enabled {
		fmt.Fprintln(out, "Rate limiting is disabled")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tMESSAGES/HOUR\tMESSAGES/DAY")
	fmt.Fprintln(w, "-----\t-------------\t------------")

	rows := []struct {
		name  string
		limit *ratelimit.LimitConfig
	}{
		{"Global", rl.Global},
		{"Per Recipient", rl.Recipient},
		{"Per Recipient Domain", rl.RecipientDomain},
	}
	for _, row := range rows {
		if row.limit == nil {
			fmt.Fprintf(w, "%s\t-\t-\n", row.name)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\n", row.name, row.limit.MessagesPerHour, row.limit.MessagesPerDay)
	}
	w.Flush()
}

func printUsage(out io.Writer, stats []*ratelimit.Stats) {
	fmt.Fprintln(out, "\nCurrent Usage:")
	if len(stats) == 0 {
		fmt.Fprintln(out, "  None recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tKEY\tHOUR\tDAY")
	fmt.Fprintln(w, "-----\t---\t----\t---")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Level, s.Key, s.HourlyCount, s.DailyCount)
	}
	w.Flush()
}
