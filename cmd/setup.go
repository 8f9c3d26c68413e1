package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"retflow/internal/config"
	"retflow/internal/secrets"
	"retflow/internal/ui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Initial configuration setup",
	Run:   runSetup,
}

func runSetup(cmd *cobra.Command, args []string) {
	if config.Exists() {
		var overwrite bool
		prompt := &survey.Confirm{
			Message: "Configuration already exists. Do you want to overwrite it?",
			Default: false,
		}
		survey.AskOne(prompt, &overwrite)
		if !overwrite {
			fmt.Println("Setup cancelled.")
			return
		}
	}

	wizard := ui.NewSetupWizard()
	result, err := wizard.Run()
	if err != nil {
		ui.ShowError(err)
		os.Exit(1)
	}

	// Passwords go to the credential store; the config file carries
	// only the refs.
	store, err := secrets.NewStore()
	if err != nil {
		ui.ShowError(err)
		os.Exit(1)
	}

	if result.WarehousePassword != "" {
		ref := result.Config.Warehouse.PasswordRef
		if ref == "" {
			ref = "warehouse"
			result.Config.Warehouse.PasswordRef = ref
		}
		if err := store.Set(ref, "password", result.WarehousePassword, map[string]string{
			"username": result.Config.Warehouse.Username,
		}); err != nil {
			ui.ShowError(err)
			os.Exit(1)
		}
	}

	if result.DashboardPassword != "" {
		ref := result.Config.Dashboard.PasswordRef
		if ref == "" {
			ref = "dashboard"
			result.Config.Dashboard.PasswordRef = ref
		}
		if err := store.Set(ref, "password", result.DashboardPassword, map[string]string{
			"username": result.Config.Dashboard.Username,
		}); err != nil {
			ui.ShowError(err)
			os.Exit(1)
		}
	}

	if err := config.Save(result.Config); err != nil {
		ui.ShowError(err)
		os.Exit(1)
	}

	fmt.Println()
	ui.ShowSuccess(fmt.Sprintf("Configuration saved to %s", config.GetConfigFile()))
	fmt.Println()
	fmt.Println("You can now run the pipeline with: retflow run")
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
