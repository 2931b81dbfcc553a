package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/policy"
)

func newTierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Inspect tier quotas",
		Long:  "Show the daily request allowance for each tier and for anonymous callers.",
	}

	cmd.AddCommand(newTierListCmd())

	return cmd
}

func newTierListCmd() *cobra.Command {
	var (
		jsonOutput bool
		policyFile string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tier quotas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTierList(jsonOutput, policyFile)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&policyFile, "policy", "", "Tier policy file (default: policy.file config key, else built-in)")

	return cmd
}

func runTierList(jsonOutput bool, policyFile string) error {
	if policyFile == "" {
		policyFile = viper.GetString("policy.file")
	}

	p := policy.Default()
	source := "built-in"
	if policyFile != "" {
		loaded, err := policy.Load(policyFile)
		if err != nil {
			return err
		}
		p = loaded
		source = policyFile
	}

	type tierRow struct {
		Tier           string `json:"tier"`
		RequestsPerDay int    `json:"requests_per_day"`
	}

	rows := make([]tierRow, 0, len(model.Tiers())+1)
	for _, t := range model.Tiers() {
		rows = append(rows, tierRow{Tier: string(t), RequestsPerDay: p.RequestsPerDay(t)})
	}
	rows = append(rows, tierRow{Tier: string(model.TierAnonymous), RequestsPerDay: p.Anonymous})

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	fmt.Printf("Tier policy (%s):\n\n", source)
	fmt.Printf("%-12s %-16s\n", "TIER", "REQUESTS/DAY")
	fmt.Printf("%-12s %-16s\n", "----", "------------")
	for _, row := range rows {
		fmt.Printf("%-12s %-16d\n", row.Tier, row.RequestsPerDay)
	}

	return nil
}
