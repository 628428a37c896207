package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"jordanella.com/autoclick-go/internal/config"
	"jordanella.com/autoclick-go/internal/logging"
)

// defaultConfigFile is picked up from the working directory when --config is not given
const defaultConfigFile = "Settings.ini"

func newRootCmd(a *app) *cobra.Command {
	find := &findOptions{}

	root := &cobra.Command{
		Use:   "autoclick [templates...]",
		Short: "Find an on-screen button across all monitors, click it and confirm",
		Long: "Searches every monitor for the best match among the given template images.\n" +
			"When the score reaches the threshold the center is clicked and the confirm key sent.\n" +
			"Running without a subcommand is the same as 'autoclick find'.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFind(cmd, find, args)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Settings file (.ini, .yaml, .json, .toml); defaults to ./"+defaultConfigFile+" when present")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "Log format: text|json")
	root.PersistentFlags().StringVar(&a.journal, "journal", "", "SQLite run journal path (empty disables)")

	addFindFlags(root, find)

	root.AddCommand(
		newFindCmd(a, find),
		newMonitorsCmd(a),
		newWhereCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// resolve loads settings then applies persistent flag overrides
func (a *app) resolve(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	if path != "" {
		s, err := config.Load(path)
		if err != nil {
			return &exitError{code: exitConfig, err: err}
		}
		a.settings = s
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") || a.settings.Log.Level == "" {
		a.settings.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") || a.settings.Log.Format == "" {
		a.settings.Log.Format = a.logFormat
	}
	if flags.Changed("journal") {
		a.settings.Journal.Path = a.journal
	}
	if err := a.settings.Validate(); err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	a.logger = logging.NewLogger("autoclick").
		SetMinLevel(logging.ParseLevel(a.settings.Log.Level)).
		SetFormat(logging.ParseFormat(a.settings.Log.Format)).
		SetOutput(a.stderr)
	a.reporter = logging.NewErrorReporterWithLogger(a.logger.Named("errors"))

	if path != "" {
		a.logger.DebugWithContext("settings loaded", map[string]interface{}{"path": path})
	}
	return nil
}

var errJournalDisabled = errors.New("no journal configured; pass --journal or set [Journal] Path")
