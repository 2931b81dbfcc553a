package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, update, and deactivate the API keys that callers present to the gateway.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyDeactivateCmd())
	cmd.AddCommand(newKeyUpdateCmd())

	return cmd
}

// cliKeyService builds a key service over the local store. The CLI has no
// server process to share a cache with, so lookups always hit the store.
func cliKeyService() (*service.KeyService, func(), error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open key store: %w", err)
	}
	c, err := cache.NewMemory(time.Minute, 16)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return service.NewKeyService(st, c, time.Minute, nil, nil), func() { st.Close() }, nil
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		description string
		tier        string
		expiresIn   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key bound to a tier. The raw key is shown once and cannot be retrieved again.",
		Example: `  keygate key create --name "CI pipeline" --tier standard
  keygate key create --name trial --tier free --expires-in 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(name, description, tier, expiresIn)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&description, "description", "", "Description of what the key is for")
	cmd.Flags().StringVar(&tier, "tier", "free", "Tier the key is billed against (free, standard, premium)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Key lifetime (e.g. 720h); 0 means no expiry")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(name, description, tierName string, expiresIn time.Duration) error {
	tier, err := model.ParseTier(tierName)
	if err != nil {
		return err
	}

	keys, closeStore, err := cliKeyService()
	if err != nil {
		return err
	}
	defer closeStore()

	params := service.CreateParams{
		Name:        name,
		Description: description,
		Tier:        tier,
		CreatedBy:   "cli",
	}
	if expiresIn > 0 {
		exp := time.Now().UTC().Add(expiresIn)
		params.ExpiresAt = &exp
	}

	key, err := keys.Create(context.Background(), params)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:  %s\n", key.Key)
	fmt.Printf("  Name: %s\n", key.Name)
	fmt.Printf("  Tier: %s\n", key.Tier)
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	keys, closeStore, err := cliKeyService()
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := keys.List(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		ID     int64  `json:"id"`
		Prefix string `json:"prefix"`
		Name   string `json:"name"`
		Tier   string `json:"tier"`
		Daily  int    `json:"daily_requests"`
		Total  int64  `json:"total_requests"`
		Active bool   `json:"active"`
	}

	rows := make([]keyRow, len(records))
	for i, k := range records {
		rows[i] = keyRow{
			ID:     k.ID,
			Prefix: k.Prefix(),
			Name:   k.Name,
			Tier:   string(k.Tier),
			Daily:  k.DailyRequests,
			Total:  k.TotalRequests,
			Active: k.IsActive,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys configured. Use 'keygate key create' to create one.")
		return nil
	}

	fmt.Printf("%-5s %-14s %-24s %-10s %-8s %-10s %-8s\n", "ID", "PREFIX", "NAME", "TIER", "DAILY", "TOTAL", "ACTIVE")
	fmt.Printf("%-5s %-14s %-24s %-10s %-8s %-10s %-8s\n", "--", "------", "----", "----", "-----", "-----", "------")
	for _, k := range rows {
		active := "yes"
		if !k.Active {
			active = "no"
		}
		fmt.Printf("%-5d %-14s %-24s %-10s %-8d %-10d %-8s\n", k.ID, k.Prefix, k.Name, k.Tier, k.Daily, k.Total, active)
	}

	return nil
}

// ---------- key deactivate ----------

func newKeyDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deactivate <prefix>",
		Aliases: []string{"revoke"},
		Short:   "Deactivate an API key by its prefix",
		Long:    "Deactivate an API key, preventing any further requests using that key. The record is kept for auditing.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyDeactivate(args[0])
		},
	}

	return cmd
}

func runKeyDeactivate(prefix string) error {
	keys, closeStore, err := cliKeyService()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()

	records, err := keys.List(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	var matched *model.APIKey
	for i := range records {
		if strings.HasPrefix(records[i].Key, prefix) {
			if matched != nil {
				return fmt.Errorf("prefix %q matches more than one key", prefix)
			}
			matched = &records[i]
		}
	}
	if matched == nil {
		return fmt.Errorf("no API key found with prefix %q", prefix)
	}

	done, err := keys.Deactivate(ctx, matched.Key)
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	if !done {
		return fmt.Errorf("key %q is already inactive", matched.Prefix())
	}

	fmt.Printf("Deactivated API key %q (%s)\n", matched.Name, matched.Prefix())
	return nil
}

// ---------- key update ----------

func newKeyUpdateCmd() *cobra.Command {
	var (
		id   int64
		tier string
		name string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update an API key's tier or name",
		Example: `  keygate key update --id 3 --tier premium
  keygate key update --id 3 --name "Acme production"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyUpdate(id, tier, name)
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "Key ID (required, see 'keygate key list')")
	cmd.Flags().StringVar(&tier, "tier", "", "New tier (free, standard, premium)")
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.MarkFlagRequired("id")

	return cmd
}

func runKeyUpdate(id int64, tierName, name string) error {
	if tierName == "" && name == "" {
		return fmt.Errorf("nothing to update: pass --tier or --name")
	}

	keys, closeStore, err := cliKeyService()
	if err != nil {
		return err
	}
	defer closeStore()

	var params service.UpdateParams
	if tierName != "" {
		tier, err := model.ParseTier(tierName)
		if err != nil {
			return err
		}
		params.Tier = &tier
	}
	if name != "" {
		params.Name = &name
	}

	key, err := keys.Update(context.Background(), id, params)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}

	fmt.Printf("Updated key %d: name=%q tier=%s\n", key.ID, key.Name, key.Tier)
	return nil
}
