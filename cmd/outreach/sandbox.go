package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/sandbox"
	"github.com/foxzi/outreach/internal/storage"
)

var (
	sandboxListDomain string
	sandboxListLimit  int
	sandboxListTo     string
	sandboxShowFormat string
	sandboxClearDays  int
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Captured test email commands",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured test emails",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show a captured test email",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxExportCmd = &cobra.Command{
	Use:   "export <message_id>",
	Short: "Export a captured test email to an .eml file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxExport,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear captured test emails (server must be stopped)",
	RunE:  runSandboxClear,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sandbox statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxListDomain, "domain", "", "Filter by recipient domain")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")
	sandboxListCmd.Flags().StringVar(&sandboxListTo, "to", "", "Filter by recipient")

	sandboxShowCmd.Flags().StringVar(&sandboxShowFormat, "format", "text", "Output format (text, raw)")

	sandboxClearCmd.Flags().StringVar(&sandboxListDomain, "domain", "", "Clear only for specific recipient domain")
	sandboxClearCmd.Flags().IntVar(&sandboxClearDays, "older-than", 0, "Clear messages older than N days")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxExportCmd, sandboxClearCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

// openSandboxStorage opens the database read-only unless write is set; the
// read-only mode works while the server is running.
func openSandboxStorage(write bool) (*sandbox.Storage, *bolt.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if !write {
		db, err := storage.OpenReadOnly(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return sandbox.NewReadOnlyStorage(db), db, nil
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	store, err := sandbox.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create sandbox storage: %w", err)
	}
	return store, db, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStorage(false)
	if err != nil {
		return err
	}
	defer db.Close()

	messages, err := store.List(context.Background(), sandbox.ListFilter{
		Domain: sandboxListDomain,
		To:     sandboxListTo,
		Limit:  sandboxListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(messages) == 0 {
		fmt.Fprintln(out, "No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTO\tSUBJECT\tCAPTURED\tERROR")
	fmt.Fprintln(w, "--\t----\t--\t-------\t--------\t-----")

	for _, msg := range messages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(msg.ID),
			msg.Mode,
			shorten(strings.Join(msg.To, ", "), 30),
			shorten(msg.Subject, 30),
			msg.CapturedAt.Format("2006-01-02 15:04"),
			orDash(msg.SimulatedErr),
		)
	}

	w.Flush()
	fmt.Fprintf(out, "\nTotal: %d messages\n", len(messages))
	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStorage(false)
	if err != nil {
		return err
	}
	defer db.Close()

	msg, err := store.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}

	out := cmd.OutOrStdout()
	if sandboxShowFormat == "raw" {
		fmt.Fprintln(out, string(msg.Data))
		return nil
	}

	fmt.Fprintf(out, "Message: %s\n\n", msg.ID)
	fmt.Fprintf(out, "Mode:       %s\n", msg.Mode)
	fmt.Fprintf(out, "Domain:     %s\n", msg.Domain)
	fmt.Fprintf(out, "From:       %s\n", msg.From)
	fmt.Fprintf(out, "To:         %s\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(out, "Subject:    %s\n", msg.Subject)
	fmt.Fprintf(out, "Captured:   %s\n", msg.CapturedAt.Format(time.RFC3339))
	if msg.SimulatedErr != "" {
		fmt.Fprintf(out, "\nSimulated Error: %s\n", msg.SimulatedErr)
	}

	fmt.Fprintln(out, "\nBody:")
	fmt.Fprintln(out, "---")
	fmt.Fprintln(out, msg.Body)
	fmt.Fprintln(out, "---")
	return nil
}

func runSandboxExport(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStorage(false)
	if err != nil {
		return err
	}
	defer db.Close()

	id := args[0]
	msg, err := store.Get(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}

	filename := fmt.Sprintf("%s.eml", id)
	if err := os.WriteFile(filename, msg.Data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Message exported to: %s\n", filename)
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStorage(true)
	if err != nil {
		return err
	}
	defer db.Close()

	var olderThan time.Duration
	if sandboxClearDays > 0 {
		olderThan = time.Duration(sandboxClearDays) * 24 * time.Hour
	}

	count, err := store.Clear(context.Background(), sandboxListDomain, olderThan)
	if err != nil {
		return fmt.Errorf("failed to clear sandbox: %w", err)
	}

	out := cmd.OutOrStdout()
	if sandboxListDomain != "" {
		fmt.Fprintf(out, "Cleared %d messages from sandbox for domain %s\n", count, sandboxListDomain)
	} else {
		fmt.Fprintf(out, "Cleared %d messages from sandbox\n", count)
	}
	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	store, db, err := openSandboxStorage(false)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get sandbox stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Sandbox Statistics")
	fmt.Fprintln(out, "==================")
	fmt.Fprintf(out, "Total Messages: %d\n", stats.Total)
	fmt.Fprintf(out, "Failed:         %d\n", stats.Failed)
	fmt.Fprintf(out, "Total Size:     %d bytes\n", stats.TotalSize)

	if len(stats.ByMode) > 0 {
		fmt.Fprintln(out, "\nBy Mode:")
		for mode, count := range stats.ByMode {
			fmt.Fprintf(out, "  %s: %d\n", mode, count)
		}
	}
	if len(stats.ByDomain) > 0 {
		fmt.Fprintln(out, "\nBy Domain:")
		for domain, count := range stats.ByDomain {
			fmt.Fprintf(out, "  %s: %d\n", domain, count)
		}
	}

	if !stats.OldestAt.IsZero() {
		fmt.Fprintf(out, "\nOldest Message: %s\n", stats.OldestAt.Format(time.RFC3339))
	}
	if !stats.NewestAt.IsZero() {
		fmt.Fprintf(out, "Newest Message: %s\n", stats.NewestAt.Format(time.RFC3339))
	}
	return nil
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shorten(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
