package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newFunctionsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "functions",
		Short: "Manage standalone functions (spec §4.7)",
	}
	cmd.AddCommand(
		newFunctionsUploadCmd(state),
		newFunctionsBindCmd(state),
		newFunctionsListCmd(state),
	)
	return cmd
}

func newFunctionsUploadCmd(state *cliState) *cobra.Command {
	var gamespace, name, file string
	var imports []string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Create or update a function's source code",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			return state.functions.Put(cmd.Context(), gamespace, name, string(code), imports)
		},
	}
	cmd.Flags().StringVar(&gamespace, "gamespace", "", "gamespace ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "function name (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to the function's source file (required)")
	cmd.Flags().StringSliceVar(&imports, "import", nil, "name of another function in this gamespace to import, repeatable")
	_ = cmd.MarkFlagRequired("gamespace")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newFunctionsBindCmd(state *cliState) *cobra.Command {
	var gamespace, app, name string

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Allow an application to call a standalone function",
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.functions.Bind(cmd.Context(), gamespace, app, name)
		},
	}
	cmd.Flags().StringVar(&gamespace, "gamespace", "", "gamespace ID (required)")
	cmd.Flags().StringVar(&app, "app", "", "application name (required)")
	cmd.Flags().StringVar(&name, "name", "", "function name (required)")
	_ = cmd.MarkFlagRequired("gamespace")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newFunctionsListCmd(state *cliState) *cobra.Command {
	var gamespace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List functions recorded for a gamespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			fns, err := state.functions.List(cmd.Context(), gamespace)
			if err != nil {
				return err
			}
			for _, fn := range fns {
				fmt.Printf("%s\timports=%s\n", fn.Name, strings.ReplaceAll(fn.Imports, ",", ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gamespace, "gamespace", "", "gamespace ID (required)")
	_ = cmd.MarkFlagRequired("gamespace")
	return cmd
}
