package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expense-analyzer/cmd/analyzer/config"
	"expense-analyzer/internal/pipeline"
	"expense-analyzer/pkg/logger"
)

// unitsCmd lists the business units of the ledger
var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the business units found in the ledger",
	Long: `Units lists the distinct business units of the ledger for the given year,
with the recipient and excluded accounting categories from the units file
when one is given. Use the names with 'analyzer run --unit'.

Examples:
  analyzer units --ledger-file base_despesas.csv --year 2024
  analyzer units --source postgres --units-file units.yaml`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindSourceFlags(cmd)
		return viper.BindPFlag(config.KeyUnitsFile, cmd.Flags().Lookup(config.KeyUnitsFile))
	},
	RunE: listUnits,
}

func init() {
	rootCmd.AddCommand(unitsCmd)
	addSourceFlags(unitsCmd)
	unitsCmd.Flags().String(config.KeyUnitsFile, "", "YAML units directory")
}

func listUnits(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	settings, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}
	source, err := config.BuildSource(settings.Source, log)
	if err != nil {
		return err
	}
	defer source.Close()

	units, err := source.Units(context.Background(), settings.Pipeline.Year)
	if err != nil {
		return err
	}
	return printUnits(cmd.OutOrStdout(), units, settings.Pipeline.Directory)
}

func printUnits(w io.Writer, units []string, directory map[string]pipeline.UnitProfile) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIDADE\tDESTINATÁRIO\tCONTAS EXCLUÍDAS")
	for _, unit := range units {
		profile := directory[unit]
		recipient := profile.Recipient
		if recipient == "" {
			recipient = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", unit, recipient, len(profile.ExcludedAccounts))
	}
	return tw.Flush()
}
