package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ka/internal/auth"
	"github.com/joescharf/ka/internal/logging"
	"github.com/joescharf/ka/internal/output"
	"github.com/joescharf/ka/internal/session"
	"github.com/joescharf/ka/internal/store"
	"github.com/joescharf/ka/internal/tui"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *slog.Logger
	closeLog  func() error

	verbose   bool
	skipLogin bool
)

var rootCmd = &cobra.Command{
	Use:   "ka",
	Short: "Knowledge Assistant - search Jira, Confluence and the web",
	Long: `ka is a search client for the Knowledge Assistant service.

Internal mode answers one-shot questions from Jira and Confluence.
External mode holds a conversation with follow-up questions.
Running bare 'ka' opens the terminal UI.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if closeLog != nil {
		_ = closeLog()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output and debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ka/config.yaml)")
	rootCmd.Flags().BoolVar(&skipLogin, "skip-login", false, "Start past the sign-in screen")
	rootCmd.Flags().String("mode", "", "Initial search mode (internal or external)")
	_ = viper.BindPFlag("search.default_mode", rootCmd.Flags().Lookup("mode"))
}

func initConfig() {
	// A .env in the working directory is optional.
	_ = godotenv.Load()

	configDir, err := configDirFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
		os.Exit(1)
	}

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("KA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(configDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(configDir string) {
	viper.SetDefault("state_dir", configDir)
	viper.SetDefault("search.backend", backendHTTP)
	viper.SetDefault("search.base_url", "http://localhost:5000")
	viper.SetDefault("search.timeout", "60s")
	viper.SetDefault("search.rate_per_minute", 0)
	viper.SetDefault("search.default_mode", "internal")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", defaultAnthropicModel)
	viper.SetDefault("store.path", "")
	viper.SetDefault("serve.port", 8080)
	viper.SetDefault("serve.session_ttl", "1h")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "logfmt")
	viper.SetDefault("log.file", filepath.Join(configDir, "logs", "ka.log"))
	viper.SetDefault("tui.glamour_style", "auto")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// Logger and store are opened lazily so config/version commands
	// never touch the state directory.
}

// rootRun handles `ka` with no subcommand: open the terminal UI.
func rootRun(cmd *cobra.Command) error {
	mode, err := defaultMode()
	if err != nil {
		return err
	}

	log, err := getLogger()
	if err != nil {
		return err
	}

	client, err := searchClientFunc(log)
	if err != nil {
		return err
	}

	ctl := session.New(client, mode, sessionOptions(log)...)
	return tui.Run(cmd.Context(), ctl, &auth.Gate{}, tui.Options{
		GlamourStyle: viper.GetString("tui.glamour_style"),
		SkipLogin:    skipLogin,
	})
}

// getLogger returns the shared logger, opening the log file on first call.
func getLogger() (*slog.Logger, error) {
	if logger != nil {
		return logger, nil
	}

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}

	l, closer, err := logging.New(logging.Options{
		Level:  level,
		Format: viper.GetString("log.format"),
		File:   viper.GetString("log.file"),
	})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	logger, closeLog = l, closer
	return logger, nil
}

// getStore returns the shared transcript store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(viper.GetString("store.path"))
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate transcript store: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
