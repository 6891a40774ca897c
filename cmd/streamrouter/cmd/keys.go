package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/core/auth"
	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/core/db"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage router API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Args:  cobra.NoArgs,
	RunE:  runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)

	keysCreateCmd.Flags().String("client", "", "client ID the key authenticates as")
	keysCreateCmd.Flags().String("name", "", "key description")
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to bind the key to (default: the only configured secret)")
	keysCreateCmd.MarkFlagRequired("client")
}

func openKeyStore(cmd *cobra.Command) (*db.APIKeyStore, func(), error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	database, queries, err := a.openDatabase()
	if err != nil {
		return nil, nil, err
	}
	if err := db.RequireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	return db.NewAPIKeyStore(queries), func() { database.Close() }, nil
}

// selectSecret picks the secret named by secretID, or the only configured
// one when secretID is empty.
func selectSecret(secrets map[string][]byte, secretID string) (string, []byte, error) {
	if secretID != "" {
		secret, ok := secrets[secretID]
		if !ok {
			return "", nil, fmt.Errorf("secret_id %s is not configured", secretID)
		}
		return secretID, secret, nil
	}
	switch len(secrets) {
	case 0:
		return "", nil, fmt.Errorf("no HMAC secrets configured (set SR_HMAC_SECRET)")
	case 1:
		for id, secret := range secrets {
			return id, secret, nil
		}
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", nil, fmt.Errorf("several HMAC secrets configured, choose one with --secret-id: %v", ids)
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	clientID, _ := cmd.Flags().GetString("client")
	name, _ := cmd.Flags().GetString("name")
	secretFlag, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return err
	}
	secretID, secret, err := selectSecret(secrets, secretFlag)
	if err != nil {
		return err
	}

	key, hash, err := auth.GenerateAPIKey(secretID, secret)
	if err != nil {
		return err
	}

	store, closeDB, err := openKeyStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	id, err := store.Create(clientID, name, secretID, hash)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:  %s\nkey: %s\n", id, key)
	fmt.Fprintln(out, "The key is not stored and cannot be shown again.")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openKeyStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := store.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLIENT\tNAME\tCREATED\tLAST USED\tSTATUS")
	for _, k := range keys {
		lastUsed := "-"
		if k.LastUsedAt.Valid {
			lastUsed = k.LastUsedAt.Time.Format("2006-01-02 15:04")
		}
		state := "active"
		if k.RevokedAt.Valid {
			state = "revoked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.APIKeyID, k.ClientID, k.Name, k.CreatedAt.Format("2006-01-02 15:04"), lastUsed, state)
	}
	return w.Flush()
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openKeyStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.Revoke(args[0]); err != nil {
		return fmt.Errorf("revoke %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}
