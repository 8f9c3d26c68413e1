package ui_test

import (
	"fmt"

	"retflow/internal/ui"
)

// ExampleTable demonstrates table formatting
func ExampleTable() {
	table := ui.NewTable()
	table.AddHeader("Stage", "Status", "Time")
	table.AddRow("prepare", "ok", "1.2s")
	table.AddRow("aggregate", "ok", "0.8s")
	table.AddRow("export", "failed", "0.5s")
	table.Render()

	// Output:
	// Stage      Status  Time
	// -----      ------  ----
	// prepare    ok      1.2s
	// aggregate  ok      0.8s
	// export     failed  0.5s
}

// ExampleSetupWizard demonstrates the configuration wizard
func ExampleSetupWizard() {
	_ = ui.NewSetupWizard() // wizard would be used interactively

	// In a real scenario, this would be interactive
	// result, err := wizard.Run()

	fmt.Println("Setup wizard example")

	// Output:
	// Setup wizard example
}
