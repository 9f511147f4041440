package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyPage  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every repository",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Conversations per page")
	historyCmd.Flags().IntVarP(&historyPage, "page", "p", 1, "Page to show, 1 is the most recent")
}

func runHistory(cmd *cobra.Command, args []string) error {
	history, err := newClient().History(cmd.Context(), historyPage, historyLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), history)
	}
	entries := history.Conversations
	if len(entries) == 0 {
		if history.Total == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations yet.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Page %d is empty, there are %d page(s).\n", history.Page, history.TotalPages)
		}
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tQUERY\tANSWER")
	for _, e := range entries {
		when := time.Unix(e.Timestamp, 0).Local().Format(time.DateTime)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, when, oneLine(e.Query), oneLine(e.Result.Answer))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\npage %d of %d (%d conversations)\n", history.Page, history.TotalPages, history.Total)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := newClient()

	summaries, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), summaries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSOURCE\tLAST SYNC\tERROR")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.RepositoryID, s.State, s.Source, formatTime(s.LastSyncedAt), oneLine(s.LastError))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	h, err := c.Health(cmd.Context())
	if err != nil {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nserver: %s\n", h.Status)
	for name, st := range h.Dependencies {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, st)
	}
	return nil
}
