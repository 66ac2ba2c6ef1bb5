// Package cli provides the command-line interface for orm4go.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ammar0144/orm4go"
	"github.com/ammar0144/orm4go/pkg/config"
)

// Version information (set at build time).
var Version = "0.1.0"

// noDB marks commands that run without opening the database.
const noDB = "orm4go/no-db"

// appKey is used to store the App in context.
type appKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "orm4go",
		Short: "orm4go - inspect table metadata, associations and records",
		Long: `orm4go loads table metadata from a config file or by discovering the database
schema, and shows how tables, associations and records are interpreted.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[noDB] != "" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			app, err := orm4go.Open(cmd.Context(), cfg, orm4go.WithLogger(logger))
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if app, ok := cmd.Context().Value(appKey{}).(*orm4go.App); ok {
				return app.Close()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newTablesCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newFindCommand())
	rootCmd.AddCommand(newInflectCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// getApp retrieves the App opened by the root command.
func getApp(cmd *cobra.Command) (*orm4go.App, error) {
	if app, ok := cmd.Context().Value(appKey{}).(*orm4go.App); ok {
		return app, nil
	}
	return nil, fmt.Errorf("%s needs a database connection", cmd.Name())
}
