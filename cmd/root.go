package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/gridsync/internal/config"
	"github.com/surge-downloader/gridsync/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// app is the state shared by every subcommand once the root command has
// loaded the configuration.
type app struct {
	configPath string
	envFile    string

	settings *config.Settings
	logger   zerolog.Logger
	closeLog func()
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = NewRootCmd()

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "gridsync",
		Short: "Progressive downloader for time-indexed weather grids",
		Long: `gridsync fetches large time-indexed grid datasets progressively:
the timesteps around the time you are looking at first, everything else in
the background, under a global concurrency limit.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}
	root.SetVersionTemplate("gridsync version {{.Version}}\n")

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "settings file (default: "+config.GetSettingsPath()+")")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading GRIDSYNC_* variables")

	root.AddCommand(newFetchCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

// initialize loads the dotenv file, the settings and sets up logging.
func (a *app) initialize(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	settings, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	a.settings = settings

	logger, closeLog, err := utils.Setup(settings.General, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog

	a.logger.Debug().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("config", a.settingsPath()).
		Msg("starting")
	return nil
}

// redirectLog rebuilds the logger with its console output sent to w.
func (a *app) redirectLog(w io.Writer) error {
	logger, closeLog, err := utils.Setup(a.settings.General, w)
	if err != nil {
		return err
	}
	if a.closeLog != nil {
		a.closeLog()
	}
	a.logger = logger
	a.closeLog = closeLog
	return nil
}

func (a *app) settingsPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.GetSettingsPath()
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
