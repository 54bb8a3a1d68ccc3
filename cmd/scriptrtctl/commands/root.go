// Package commands implements scriptrtctl's command tree, grounded on the
// pack's own cobra-based admin CLI shape (wikilite's cmd/commands): a root
// command carrying shared flags, a persistent pre-run that opens the
// stores, and one subcommand file per concern.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/kestrel-labs/scriptrt/internal/functionrepo"
	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
)

// cliState holds the shared runtime state every subcommand needs.
type cliState struct {
	functions *functionrepo.Store
	settings  *projectsettings.Store

	functionRepoDSN    string
	projectSettingsDSN string
}

// NewRootCmd builds the entire scriptrtctl command tree.
func NewRootCmd() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:   "scriptrtctl",
		Short: "Administrative CLI for a scriptrt deployment",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			functions, err := functionrepo.Open(state.functionRepoDSN)
			if err != nil {
				return err
			}
			settings, err := projectsettings.Open(state.projectSettingsDSN)
			if err != nil {
				return err
			}
			state.functions = functions
			state.settings = settings
			return nil
		},
	}

	root.PersistentFlags().StringVar(&state.functionRepoDSN, "function-repo-db", "./data/functions.db", "FunctionRepo SQLite path")
	root.PersistentFlags().StringVar(&state.projectSettingsDSN, "project-settings-db", "./data/project_settings.db", "ProjectSettings SQLite path")

	root.AddCommand(
		newFunctionsCmd(state),
		newSettingsCmd(state),
	)
	return root
}
