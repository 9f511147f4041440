package main

import (
	"fmt"
	"strings"

	"github.com/gomantics/repochat/internal/api/chat"
	"github.com/gomantics/repochat/internal/client"
	"github.com/spf13/cobra"
)

var (
	askRepos   []string
	askParent  string
	askVerbose bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the active repositories",
	Long: `Ask a question about the active repositories.

Without --repo the question covers every active repository. Use --parent to
continue an earlier conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringSliceVar(&askRepos, "repo", nil, "Restrict the question to these repository ids")
	askCmd.Flags().StringVar(&askParent, "parent", "", "Conversation id this question follows up on")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "Show every agent's result")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ans, err := newClient().Ask(cmd.Context(), chat.AskRequest{
		Query:         strings.Join(args, " "),
		RepositoryIDs: askRepos,
		ParentID:      askParent,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), ans)
	}
	printAnswer(cmd, ans)
	return nil
}

func printAnswer(cmd *cobra.Command, ans *client.Answer) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ans.Answer)

	if ans.Degraded {
		fmt.Fprintln(out, "\n(degraded: the completion agent did not answer, showing other agents' output)")
	}
	for _, w := range ans.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	if askVerbose {
		fmt.Fprintln(out)
		for _, r := range ans.AgentResults {
			if r.Error != "" {
				fmt.Fprintf(out, "[%s] failed: %s\n", r.Agent, r.Error)
				continue
			}
			fmt.Fprintf(out, "[%s]\n%s\n", r.Agent, r.Payload)
		}
	}
	fmt.Fprintf(out, "\nconversation: %s\n", ans.ID)
}
