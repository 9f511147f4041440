package main

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/gomantics/repochat/internal/api/repositories"
	"github.com/gomantics/repochat/internal/domains/status"
	"github.com/spf13/cobra"
)

var repoBranch string

var repoCmd = &cobra.Command{
	Use:     "repo",
	Aliases: []string{"repos"},
	Short:   "Manage registered repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add <source>...",
	Short: "Register repositories by local path or remote URL",
	Long: `Register one or more repositories by local path or remote URL.

With several sources each one is registered on its own; failures are
listed and do not stop the others. --branch applies to every source.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRepoAdd,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	Args:  cobra.NoArgs,
	RunE:  runRepoList,
}

var repoGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoGet,
}

var repoRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Unregister a repository",
	Long: `Unregister a repository. A running sync is cancelled first; the
server then removes the record in the background.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepoRemove,
}

var repoSyncCmd = &cobra.Command{
	Use:   "sync <id>",
	Short: "Fetch and rebuild the repository's knowledge graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob(func(cmd *cobra.Command, id string) (*repositories.JobResponse, error) {
		return newClient().Sync(cmd.Context(), id)
	}),
}

var repoActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make the repository available to chat",
	Args:  cobra.ExactArgs(1),
	RunE: runJob(func(cmd *cobra.Command, id string) (*repositories.JobResponse, error) {
		return newClient().Activate(cmd.Context(), id)
	}),
}

var repoDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Withdraw the repository from chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoDeactivate,
}

var repoWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Stream status changes of a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoWatch,
}

func init() {
	rootCmd.AddCommand(repoCmd)

	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoGetCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	repoCmd.AddCommand(repoSyncCmd)
	repoCmd.AddCommand(repoActivateCmd)
	repoCmd.AddCommand(repoDeactivateCmd)
	repoCmd.AddCommand(repoWatchCmd)

	repoAddCmd.Flags().StringVar(&repoBranch, "branch", "", "Branch to track (default: remote HEAD)")
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return runRepoAddBatch(cmd, args)
	}
	repo, err := newClient().AddRepository(cmd.Context(), args[0], repoBranch)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), repo)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s\n", repo.Source, repo.ID)
	return nil
}

func runRepoAddBatch(cmd *cobra.Command, sources []string) error {
	items := make([]repositories.CreateRequest, len(sources))
	for i, s := range sources {
		items[i] = repositories.CreateRequest{Source: s, Branch: repoBranch}
	}

	resp, err := newClient().AddRepositories(cmd.Context(), items)
	if err != nil {
		return err
	}
	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tRESULT")
		for _, r := range resp.Results {
			if r.Repository != nil {
				fmt.Fprintf(tw, "%s\tregistered as %s\n", r.Source, r.Repository.ID)
				continue
			}
			fmt.Fprintf(tw, "%s\tfailed: %s\n", r.Source, oneLine(r.Error))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if resp.Failed > 0 {
		return fmt.Errorf("%d of %d repositories failed to register", resp.Failed, len(sources))
	}
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	list, err := newClient().ListRepositories(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), list)
	}
	return printRepositories(cmd.OutOrStdout(), list)
}

func runRepoGet(cmd *cobra.Command, args []string) error {
	repo, err := newClient().GetRepository(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), repo)
	}
	return printRepositories(cmd.OutOrStdout(), []repositories.Repository{*repo})
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	resp, err := newClient().RemoveRepository(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	if resp.Status == "pending" {
		fmt.Fprintf(cmd.OutOrStdout(), "Removal of %s scheduled after its sync stops\n", resp.ID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", resp.ID)
	return nil
}

func runJob(call func(*cobra.Command, string) (*repositories.JobResponse, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		job, err := call(cmd, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), job)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s started; follow with 'repochat repo watch %s'\n",
			job.RepositoryID, job.State, job.RepositoryID)
		return nil
	}
}

func runRepoDeactivate(cmd *cobra.Command, args []string) error {
	repo, err := newClient().Deactivate(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), repo)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", repo.ID, repo.State)
	return nil
}

func runRepoWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	err := newClient().Watch(ctx, args[0], func(ev status.Event) error {
		if jsonOutput {
			return printJSON(out, ev)
		}
		switch {
		case ev.Removed:
			fmt.Fprintf(out, "%s removed\n", ev.RepositoryID)
		case ev.LastError != "":
			fmt.Fprintf(out, "%s %s (v%d): %s\n", ev.RepositoryID, ev.State, ev.Version, oneLine(ev.LastError))
		default:
			fmt.Fprintf(out, "%s %s (v%d)\n", ev.RepositoryID, ev.State, ev.Version)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
