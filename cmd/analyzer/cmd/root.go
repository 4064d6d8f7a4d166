package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expense-analyzer/pkg/logger"
)

var (
	cfgFile   string
	envFile   string
	verbose   bool
	logLevel  string
	logFormat string
	logFile   string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "Expense analysis and reporting batch",
	Long: `Analyzer reads the expense ledger and the planned budget, computes per
business unit the budget execution, supplier and project rankings, monthly
trend, contextual anomalies and account clusters, and writes one report
bundle per unit (CSV, HTML, XLSX, JSON) plus a run manifest.

Examples:
  analyzer run --year 2024 --ledger-file base_despesas.csv --budget-file orcamento.csv
  analyzer run --source postgres --year 2024 --unit "SP - Norte" --formats html,xlsx
  analyzer units --ledger-file base_despesas.csv --year 2024
  analyzer version`,
	Version:       getVersionString(),
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with database DSNs and other secrets")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write JSON logs to this file instead of stderr")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig loads the dotenv file, the config file and ENV variables, then
// sets up the global logger
func initConfig() {
	if err := loadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading env file: %s\n", err)
		os.Exit(1)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("ANALYZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := setupLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(1)
	}
}

// loadEnvFile loads KEY=VALUE pairs without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func setupLogger() error {
	config := logger.DefaultConfig()
	switch {
	case viper.GetString("log.file") != "":
		// scheduled runs log to a file
		config = logger.ProductionConfig()
		config.File = viper.GetString("log.file")
	case viper.GetBool("verbose"):
		config = logger.DebugConfig()
	}

	// --verbose wins over the default level, not over an explicit one
	level := logger.Level(viper.GetString("log.level"))
	if level != "" && !(level == logger.InfoLevel && config.Level == logger.DebugLevel) {
		config.Level = level
	}
	if format := viper.GetString("log.format"); format != "" && config.Output != logger.FileOutput {
		config.Format = logger.Format(format)
	}

	log, err := logger.NewLogger(config)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
