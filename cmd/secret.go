package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"retflow/internal/secrets"
	"retflow/internal/ui"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage stored credentials",
	Long: `Manage the credentials the pipeline uses. Secrets live in the OS
keyring (or an encrypted file store when no keyring is available); the
config file only ever references them by name.`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store or update a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return err
		}

		value, err := ui.Password(fmt.Sprintf("Value for %q:", args[0]), "")
		if err != nil {
			return err
		}

		if err := store.Set(args[0], "password", value, nil); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Credential %q stored", args[0]))
		return nil
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a credential's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return err
		}

		cred, err := store.Get(args[0])
		if err != nil {
			return err
		}

		// The value itself is never printed.
		fmt.Printf("Name: %s\n", cred.Name)
		fmt.Printf("Kind: %s\n", cred.Kind)
		for k, v := range cred.Metadata {
			fmt.Printf("%s: %s\n", k, v)
		}
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return err
		}

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Credential %q deleted", args[0]))
		return nil
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential names",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return err
		}

		names, err := store.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No credentials stored.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretGetCmd)
	secretCmd.AddCommand(secretDeleteCmd)
	secretCmd.AddCommand(secretListCmd)
	rootCmd.AddCommand(secretCmd)
}
