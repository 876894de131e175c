// Package cli is the tasklane command line: run the coordinator, or sign in
// and out against the configured credential store.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tasklane/cmd/internal/app"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "tasklane",
		Short: "tasklane session and notification coordinator",
		Long: `tasklane keeps a signed-in session with the project API and a live
notification channel to the hub.

"tasklane run" serves the local status endpoints; login, logout and whoami
work against the same credential store.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file (default $TASKLANE_CONFIG)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newLoginCmd(g))
	root.AddCommand(newLogoutCmd(g))
	root.AddCommand(newWhoamiCmd(g))

	return root
}

// Execute runs the root command.
func Execute(version string) error {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (g *globalFlags) loadConfig() (app.Config, error) {
	path := g.configPath
	if path == "" {
		path = app.EnvString("TASKLANE_CONFIG", "")
	}
	cfg, err := app.LoadConfigFile(path)
	if err != nil {
		return app.Config{}, err
	}
	if g.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// openApp builds and hydrates an App for one-shot commands. Logs go to
// stderr so stdout stays parseable.
func (g *globalFlags) openApp(ctx context.Context, stderr io.Writer) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	log := app.NewLoggerTo(stderr, level, cfg.LogFormat)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.Hydrate(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
