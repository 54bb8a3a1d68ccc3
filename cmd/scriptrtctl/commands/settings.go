package commands

import (
	"github.com/spf13/cobra"

	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
)

func newSettingsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-application and per-server project settings",
	}
	cmd.AddCommand(newSettingsSetCmd(state))
	return cmd
}

func newSettingsSetCmd(state *cliState) *cobra.Command {
	var gamespace, app, repoURL, branch, sshKey, commit string
	var server bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Bind an application (or the server project) to a repo/branch/commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := app
			if server {
				key = projectsettings.ServerKey
			}
			return state.settings.Put(cmd.Context(), projectsettings.Settings{
				GamespaceID:    gamespace,
				ApplicationKey: key,
				RepoURL:        repoURL,
				Branch:         branch,
				SSHKey:         sshKey,
				CurrentCommit:  commit,
			})
		},
	}
	cmd.Flags().StringVar(&gamespace, "gamespace", "", "gamespace ID (required)")
	cmd.Flags().StringVar(&app, "app", "", "application name (ignored if --server)")
	cmd.Flags().BoolVar(&server, "server", false, "bind the gamespace's Server Code project instead of an application")
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "source repo URL (required)")
	cmd.Flags().StringVar(&branch, "branch", "main", "source repo branch")
	cmd.Flags().StringVar(&sshKey, "ssh-key", "", "SSH deploy key, if the repo requires one")
	cmd.Flags().StringVar(&commit, "commit", "", "current commit (required)")
	_ = cmd.MarkFlagRequired("gamespace")
	_ = cmd.MarkFlagRequired("repo-url")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}
