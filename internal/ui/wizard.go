package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"retflow/internal/retention"
	"retflow/pkg/models"
)

// SetupWizard provides an interactive configuration setup
type SetupWizard struct {
	currentStep int
	totalSteps  int
}

// SetupResult carries the assembled configuration plus the raw
// credentials collected during setup. Callers store the credentials
// in the secret store and persist only the refs.
type SetupResult struct {
	Config            *models.Config
	WarehousePassword string
	DashboardPassword string
}

// NewSetupWizard creates a new configuration wizard
func NewSetupWizard() *SetupWizard {
	return &SetupWizard{
		currentStep: 1,
		totalSteps:  5,
	}
}

// Run executes the configuration wizard
func (w *SetupWizard) Run() (*SetupResult, error) {
	ShowHeader("RetFlow - Configuration Setup")

	result := &SetupResult{Config: &models.Config{}}

	// Step 1: Warehouse connection
	if err := w.configureWarehouseStep(result); err != nil {
		if err == terminal.InterruptErr {
			return nil, fmt.Errorf("configuration cancelled")
		}
		return nil, err
	}

	// Step 2: Retention source
	if err := w.configureRetentionStep(result.Config); err != nil {
		if err == terminal.InterruptErr {
			return nil, fmt.Errorf("configuration cancelled")
		}
		return nil, err
	}

	// Step 3: Object storage
	if err := w.configureStorageStep(result.Config); err != nil {
		if err == terminal.InterruptErr {
			return nil, fmt.Errorf("configuration cancelled")
		}
		return nil, err
	}

	// Step 4: Dashboard server
	if err := w.configureDashboardStep(result); err != nil {
		if err == terminal.InterruptErr {
			return nil, fmt.Errorf("configuration cancelled")
		}
		return nil, err
	}

	// Step 5: Review and confirm
	if err := w.reviewConfiguration(result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

func (w *SetupWizard) configureWarehouseStep(result *SetupResult) error {
	w.showProgress("Warehouse Connection")

	dialect := ""
	dialectPrompt := &survey.Select{
		Message: "Warehouse dialect:",
		Options: []string{"redshift", "snowflake"},
		Default: "redshift",
		Help:    "Engine hosting the sessions table",
	}
	if err := survey.AskOne(dialectPrompt, &dialect); err != nil {
		return err
	}

	var questions []*survey.Question
	if dialect == "redshift" {
		questions = []*survey.Question{
			{
				Name: "host",
				Prompt: &survey.Input{
					Message: "Cluster Host:",
					Help:    "Cluster endpoint (e.g., analytics.abc123.us-east-1.redshift.amazonaws.com)",
				},
				Validate: survey.Required,
			},
			{
				Name: "port",
				Prompt: &survey.Input{
					Message: "Port:",
					Default: "5439",
				},
				Validate: validateNumeric,
			},
			{
				Name: "unloadRole",
				Prompt: &survey.Input{
					Message: "Unload Role ARN:",
					Help:    "IAM role authorizing UNLOAD writes to your bucket",
				},
				Validate: survey.Required,
			},
		}
	} else {
		questions = []*survey.Question{
			{
				Name: "account",
				Prompt: &survey.Input{
					Message: "Account:",
					Help:    "Account identifier (e.g., xy12345.us-east-1)",
				},
				Validate: survey.Required,
			},
			{
				Name: "warehouse",
				Prompt: &survey.Input{
					Message: "Warehouse:",
					Default: "COMPUTE_WH",
					Help:    "Virtual warehouse to use for executing queries",
				},
				Validate: survey.Required,
			},
			{
				Name: "role",
				Prompt: &survey.Input{
					Message: "Role:",
					Default: "SYSADMIN",
				},
				Validate: survey.Required,
			},
			{
				Name: "stage",
				Prompt: &survey.Input{
					Message: "External Stage:",
					Help:    "Stage pointing at your bucket, used by COPY INTO",
				},
				Validate: survey.Required,
			},
		}
	}

	questions = append(questions,
		&survey.Question{
			Name: "username",
			Prompt: &survey.Input{
				Message: "Username:",
			},
			Validate: survey.Required,
		},
		&survey.Question{
			Name: "password",
			Prompt: &survey.Password{
				Message: "Password:",
				Help:    "Stored in the system credential store, never in the config file",
			},
			Validate: survey.Required,
		},
		&survey.Question{
			Name: "database",
			Prompt: &survey.Input{
				Message: "Database:",
				Default: "analytics",
			},
			Validate: survey.Required,
		},
		&survey.Question{
			Name: "schema",
			Prompt: &survey.Input{
				Message: "Schema:",
				Default: "public",
			},
			Validate: survey.Required,
		},
	)

	answers := struct {
		Host       string
		Port       string
		UnloadRole string
		Account    string
		Warehouse  string
		Role       string
		Stage      string
		Username   string
		Password   string
		Database   string
		Schema     string
	}{}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	port := 0
	if answers.Port != "" {
		port, _ = strconv.Atoi(answers.Port)
	}

	result.Config.Warehouse = models.Warehouse{
		Dialect:     dialect,
		Host:        answers.Host,
		Port:        port,
		Account:     answers.Account,
		Username:    answers.Username,
		PasswordRef: "warehouse",
		Database:    answers.Database,
		Schema:      answers.Schema,
		Warehouse:   answers.Warehouse,
		Role:        answers.Role,
		UnloadRole:  answers.UnloadRole,
		Stage:       answers.Stage,
	}
	if dialect == "redshift" {
		result.Config.Warehouse.SSLMode = "require"
	}
	result.WarehousePassword = answers.Password

	w.currentStep++
	return nil
}

func (w *SetupWizard) configureRetentionStep(config *models.Config) error {
	w.showProgress("Retention Source")

	questions := []*survey.Question{
		{
			Name: "sessionsTable",
			Prompt: &survey.Input{
				Message: "Sessions Table:",
				Help:    "Table holding one row per user session",
			},
			Validate: survey.Required,
		},
		{
			Name: "aggregateTable",
			Prompt: &survey.Input{
				Message: "Aggregate Table:",
				Help:    "Table the aggregation stage creates",
			},
			Validate: survey.Required,
		},
		{
			Name: "userColumn",
			Prompt: &survey.Input{
				Message: "User Column:",
				Default: "player_id",
			},
			Validate: survey.Required,
		},
		{
			Name: "sessionDateColumn",
			Prompt: &survey.Input{
				Message: "Session Date Column:",
				Default: "session_date",
			},
			Validate: survey.Required,
		},
		{
			Name: "cohortDateColumn",
			Prompt: &survey.Input{
				Message: "Cohort Date Column:",
				Default: "install_date",
			},
			Validate: survey.Required,
		},
		{
			Name: "offsets",
			Prompt: &survey.Input{
				Message: "Retention Offsets:",
				Default: "1,7,30",
				Help:    "Comma-separated day offsets, strictly increasing",
			},
			Validate: func(val interface{}) error {
				s, _ := val.(string)
				_, err := retention.ParseOffsets(s)
				return err
			},
		},
	}

	answers := struct {
		SessionsTable     string
		AggregateTable    string
		UserColumn        string
		SessionDateColumn string
		CohortDateColumn  string
		Offsets           string
	}{}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	offsets, err := retention.ParseOffsets(answers.Offsets)
	if err != nil {
		return err
	}

	config.Retention = models.Retention{
		SessionsTable:     answers.SessionsTable,
		AggregateTable:    answers.AggregateTable,
		UserColumn:        answers.UserColumn,
		SessionDateColumn: answers.SessionDateColumn,
		CohortDateColumn:  answers.CohortDateColumn,
		Offsets:           offsets,
		VerifySampleDays:  7,
	}

	w.currentStep++
	return nil
}

func (w *SetupWizard) configureStorageStep(config *models.Config) error {
	w.showProgress("Object Storage")

	questions := []*survey.Question{
		{
			Name: "bucket",
			Prompt: &survey.Input{
				Message: "Bucket:",
				Help:    "Bucket receiving the unloaded aggregate",
			},
			Validate: survey.Required,
		},
		{
			Name: "prefix",
			Prompt: &survey.Input{
				Message: "Prefix:",
				Default: "retention",
				Help:    "Key prefix under which run artifacts are stored",
			},
		},
		{
			Name: "region",
			Prompt: &survey.Input{
				Message: "Region:",
				Default: "us-east-1",
			},
			Validate: survey.Required,
		},
	}

	answers := struct {
		Bucket string
		Prefix string
		Region string
	}{}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	config.Storage = models.Storage{
		Bucket: answers.Bucket,
		Prefix: answers.Prefix,
		Region: answers.Region,
	}
	config.Convert = models.Convert{
		TableName: "retention",
	}

	w.currentStep++
	return nil
}

func (w *SetupWizard) configureDashboardStep(result *SetupResult) error {
	w.showProgress("Dashboard Server")

	questions := []*survey.Question{
		{
			Name: "baseURL",
			Prompt: &survey.Input{
				Message: "Server URL:",
				Help:    "Base URL of the dashboard server (e.g., https://bi.example.com)",
			},
			Validate: survey.Required,
		},
		{
			Name: "site",
			Prompt: &survey.Input{
				Message: "Site:",
				Help:    "Site content URL; leave empty for the default site",
			},
		},
		{
			Name: "username",
			Prompt: &survey.Input{
				Message: "Username:",
			},
			Validate: survey.Required,
		},
		{
			Name: "password",
			Prompt: &survey.Password{
				Message: "Password:",
				Help:    "Stored in the system credential store, never in the config file",
			},
			Validate: survey.Required,
		},
		{
			Name: "folder",
			Prompt: &survey.Input{
				Message: "Folder:",
				Help:    "Existing folder the data source is published into",
			},
			Validate: survey.Required,
		},
		{
			Name: "datasource",
			Prompt: &survey.Input{
				Message: "Data Source Name:",
				Help:    "Leave empty to derive from the aggregate table name",
			},
		},
	}

	answers := struct {
		BaseURL    string
		Site       string
		Username   string
		Password   string
		Folder     string
		Datasource string
	}{}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	result.Config.Dashboard = models.Dashboard{
		BaseURL:     answers.BaseURL,
		Site:        answers.Site,
		Username:    answers.Username,
		PasswordRef: "dashboard",
		Folder:      answers.Folder,
		Datasource:  answers.Datasource,
		Timeout:     "30s",
	}
	result.DashboardPassword = answers.Password

	w.currentStep++
	return nil
}

func (w *SetupWizard) reviewConfiguration(config *models.Config) error {
	w.showProgress("Review Configuration")

	fmt.Println("\n" + ColorInfo("Configuration Summary:"))
	fmt.Println(strings.Repeat("─", 50))

	fmt.Println(ColorBold("\nWarehouse:"))
	fmt.Printf("  Dialect:   %s\n", config.Warehouse.Dialect)
	if config.Warehouse.Dialect == "redshift" {
		fmt.Printf("  Host:      %s:%d\n", config.Warehouse.Host, config.Warehouse.Port)
	} else {
		fmt.Printf("  Account:   %s\n", config.Warehouse.Account)
	}
	fmt.Printf("  Database:  %s.%s\n", config.Warehouse.Database, config.Warehouse.Schema)
	fmt.Printf("  Username:  %s\n", config.Warehouse.Username)

	fmt.Println(ColorBold("\nRetention:"))
	fmt.Printf("  Sessions:  %s\n", config.Retention.SessionsTable)
	fmt.Printf("  Aggregate: %s\n", config.Retention.AggregateTable)
	fmt.Printf("  Offsets:   %v\n", config.Retention.Offsets)

	fmt.Println(ColorBold("\nStorage:"))
	fmt.Printf("  Bucket:    s3://%s/%s\n", config.Storage.Bucket, config.Storage.Prefix)

	fmt.Println(ColorBold("\nDashboard:"))
	fmt.Printf("  Server:    %s\n", config.Dashboard.BaseURL)
	fmt.Printf("  Folder:    %s\n", config.Dashboard.Folder)

	fmt.Println(strings.Repeat("─", 50))

	confirm := false
	prompt := &survey.Confirm{
		Message: "Save this configuration?",
		Default: true,
	}

	if err := survey.AskOne(prompt, &confirm); err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("configuration cancelled")
	}

	return nil
}

func (w *SetupWizard) showProgress(step string) {
	fmt.Printf("\n%s [Step %d/%d] %s\n\n",
		ColorProgress("►"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
}

func validateNumeric(val interface{}) error {
	s, _ := val.(string)
	if s == "" {
		return nil
	}
	if _, err := strconv.Atoi(s); err != nil {
		return fmt.Errorf("must be a number")
	}
	return nil
}
