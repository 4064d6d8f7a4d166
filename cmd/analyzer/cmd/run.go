package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expense-analyzer/cmd/analyzer/config"
	"expense-analyzer/internal/pipeline"
	"expense-analyzer/internal/reporter"
	"expense-analyzer/pkg/logger"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the expense analysis for every business unit",
	Long: `Run extracts the ledger and the budget once, integrates them, and then
analyzes each business unit in turn. A unit that fails is logged and skipped;
the run exits non-zero when any unit failed or when the upfront extraction
failed.

Examples:
  # Every unit of 2024 from CSV exports
  analyzer run --year 2024 --ledger-file base_despesas.csv --budget-file orcamento.csv

  # Two units, HTML and XLSX only, up to March
  analyzer run --ledger-file base.csv --unit "SP - Norte" --unit "SP - Sul" \
    --formats html,xlsx --month 3

  # From the warehouse, DSN read from EXPENSE_DB_HUB_DSN (.env supported)
  analyzer run --source postgres --year 2024 --progress

  # Isolation-forest anomalies and six clusters
  analyzer run --ledger-file base.csv --anomaly-strategy isolation --clusters 6`,

	PreRunE: validateRunFlags,
	RunE:    runAnalysis,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addSourceFlags(runCmd)

	runCmd.Flags().String(config.KeyBudgetPeriod, "", "budget period id (default: the year)")
	runCmd.Flags().Int(config.KeyMonth, 0, "analyze months up to this one (1-12), 0 for the latest month in the data")
	runCmd.Flags().StringArray(config.KeyUnit, nil, "business unit to process, repeatable (default: every unit)")
	runCmd.Flags().String(config.KeyUnitsFile, "", "YAML units directory with excluded accounting categories")

	runCmd.Flags().StringP(config.KeyOutputDir, "o", "output", "directory for the report artifacts")
	runCmd.Flags().StringP(config.KeyFormats, "f", "csv,html,xlsx,json", "artifact formats: console, json, csv, html, xlsx, tables")
	runCmd.Flags().Bool(config.KeyNoColor, false, "disable colors in console output")

	runCmd.Flags().Int(config.KeyTopSuppliers, 5, "number of suppliers in the rankings")
	runCmd.Flags().Int(config.KeyClusters, 4, "number of account clusters")
	runCmd.Flags().String(config.KeyAnomalyStrategy, "rarity", "contextual anomaly strategy: rarity, isolation")
	runCmd.Flags().Bool(config.KeyProgress, false, "show progress indicators")

	for _, key := range []string{
		config.KeyBudgetPeriod, config.KeyMonth, config.KeyUnit, config.KeyUnitsFile,
		config.KeyOutputDir, config.KeyFormats, config.KeyNoColor, config.KeyTopSuppliers,
		config.KeyClusters, config.KeyAnomalyStrategy, config.KeyProgress,
	} {
		viper.BindPFlag(key, runCmd.Flags().Lookup(key))
	}
}

// addSourceFlags registers the flags shared by every command reading the ledger
func addSourceFlags(c *cobra.Command) {
	c.Flags().Int(config.KeyYear, time.Now().Year(), "fiscal year to analyze")
	c.Flags().String(config.KeySource, config.SourceCSV, "ledger source: csv, postgres")
	c.Flags().String(config.KeyLedgerFile, "", "ledger CSV export (csv source)")
	c.Flags().String(config.KeyBudgetFile, "", "budget CSV export (csv source, optional)")
}

// bindSourceFlags binds the shared source flags of the command being run.
// Binding happens in PreRunE because several commands declare them.
func bindSourceFlags(c *cobra.Command) {
	for _, key := range []string{config.KeyYear, config.KeySource, config.KeyLedgerFile, config.KeyBudgetFile} {
		viper.BindPFlag(key, c.Flags().Lookup(key))
	}
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	bindSourceFlags(cmd)

	if month := viper.GetInt(config.KeyMonth); month < 0 || month > 12 {
		return fmt.Errorf("invalid month %d: use 1-12, or 0 for the latest month", month)
	}
	if strategy := strings.ToLower(viper.GetString(config.KeyAnomalyStrategy)); strategy != "rarity" && strategy != "isolation" {
		return fmt.Errorf("invalid anomaly strategy '%s'. Valid strategies: rarity, isolation", strategy)
	}
	if viper.GetInt(config.KeyTopSuppliers) <= 0 {
		return fmt.Errorf("top suppliers must be positive")
	}
	return nil
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")

	settings, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting expense analysis...\n")
		fmt.Fprintf(os.Stderr, "Year: %d (budget period %s)\n", settings.Pipeline.Year, settings.Pipeline.BudgetPeriod)
		fmt.Fprintf(os.Stderr, "Source: %s\n", settings.Source.Kind)
		fmt.Fprintf(os.Stderr, "Output directory: %s\n", settings.Report.OutputDir)
		if len(settings.Pipeline.Units) > 0 {
			fmt.Fprintf(os.Stderr, "Units: %s\n", strings.Join(settings.Pipeline.Units, ", "))
		}
	}

	source, err := config.BuildSource(settings.Source, log)
	if err != nil {
		return err
	}
	defer source.Close()

	writer, err := reporter.NewSafeReportGenerator(settings.Report, log)
	if err != nil {
		return err
	}
	writer.Console = cmd.OutOrStdout()

	p, err := pipeline.New(settings.Pipeline, source, writer, log)
	if err != nil {
		return err
	}
	if settings.Progress {
		p.AddProgressCallback(func(progress *pipeline.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedUnits, progress.TotalUnits,
				progress.CurrentUnit, progress.PercentComplete)
		})
	}

	result, err := p.Run(ctx)
	if settings.Progress {
		fmt.Fprintf(os.Stderr, "\n") // New line after progress
	}
	if err != nil {
		return err
	}

	manifestPath, err := reporter.WriteManifest(settings.Report.OutputDir, result.Manifest())
	if err != nil {
		log.WithError(err).Error("Failed to write run manifest")
	}

	printRunSummary(cmd.ErrOrStderr(), result, manifestPath)
	return result.Err()
}

// printRunSummary writes one line per unit and the manifest location
func printRunSummary(w io.Writer, result *pipeline.BatchResult, manifestPath string) {
	fmt.Fprintf(w, "Run %s: %d units, %d failed\n", result.RunID, len(result.Units), len(result.Failed()))
	for _, u := range result.Units {
		if u.Status == reporter.UnitFailed {
			fmt.Fprintf(w, "  FAILED %s: %v\n", u.Unit, u.Error)
			continue
		}
		fmt.Fprintf(w, "  ok     %s (%d artifacts, %v)\n", u.Unit, len(u.Artifacts), u.Duration.Round(time.Millisecond))
	}
	if manifestPath != "" {
		fmt.Fprintf(w, "Manifest: %s\n", manifestPath)
	}
}
