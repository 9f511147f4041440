package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gomantics/repochat/internal/api/repositories"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatTime(ts *int64) string {
	if ts == nil {
		return "-"
	}
	return time.Unix(*ts, 0).Local().Format(time.DateTime)
}

func printRepositories(w io.Writer, list []repositories.Repository) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No repositories registered.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSOURCE\tLAST SYNC\tERROR")
	for _, r := range list {
		source := r.Source
		if r.Branch != "" {
			source += "@" + r.Branch
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.State, source, formatTime(r.LastSyncedAt), oneLine(r.LastError))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
