package models

type Config struct {
    Warehouse Warehouse `yaml:"warehouse"`
    Storage   Storage   `yaml:"storage"`
    Retention Retention `yaml:"retention"`
    Convert   Convert   `yaml:"convert"`
    Dashboard Dashboard `yaml:"dashboard"`
    Notify    Notify    `yaml:"notify"`
    Pipeline  Pipeline  `yaml:"pipeline"`
}

// Warehouse holds the connection settings for the analytics warehouse.
// Exactly one of Host (redshift) or Account (snowflake) is used, keyed
// off Dialect.
type Warehouse struct {
    Dialect     string `yaml:"dialect"`      // "redshift" or "snowflake"
    Host        string `yaml:"host"`         // Endpoint host (redshift)
    Port        int    `yaml:"port"`         // Endpoint port (redshift)
    Account     string `yaml:"account"`      // Account identifier (snowflake)
    Username    string `yaml:"username"`
    PasswordRef string `yaml:"password_ref"` // Credential store key, never a literal secret
    Database    string `yaml:"database"`
    Schema      string `yaml:"schema"`
    Warehouse   string `yaml:"warehouse"`    // Virtual warehouse (snowflake)
    Role        string `yaml:"role"`
    SSLMode     string `yaml:"sslmode"`      // TLS mode (redshift)
    UnloadRole  string `yaml:"unload_role"`  // IAM role ARN authorizing UNLOAD writes
    Stage       string `yaml:"stage"`        // External stage for COPY INTO (snowflake)
    Timeout     string `yaml:"timeout"`      // Per-statement timeout, e.g. "5m"
}

type Storage struct {
    Bucket    string `yaml:"bucket"`
    Prefix    string `yaml:"prefix"`
    Region    string `yaml:"region"`
    Endpoint  string `yaml:"endpoint"`   // Optional, for S3-compatible stores
    PathStyle bool   `yaml:"path_style"` // Required by some S3-compatible stores
}

// Retention describes the sessions source table and the aggregate output.
type Retention struct {
    SessionsTable     string `yaml:"sessions_table"`
    AggregateTable    string `yaml:"aggregate_table"`
    UserColumn        string `yaml:"user_column"`
    SessionDateColumn string `yaml:"session_date_column"`
    CohortDateColumn  string `yaml:"cohort_date_column"`
    Offsets           []int  `yaml:"offsets"`            // Day offsets measured after the cohort date
    VerifySampleDays  int    `yaml:"verify_sample_days"` // Cohort dates re-tallied by --verify
}

type Convert struct {
    OutputPath string `yaml:"output_path"` // Local path for the converted analytic file
    TableName  string `yaml:"table_name"`  // Table name inside the analytic file
}

type Dashboard struct {
    BaseURL     string `yaml:"base_url"`
    Site        string `yaml:"site"`
    Username    string `yaml:"username"`
    PasswordRef string `yaml:"password_ref"` // Credential store key, never a literal secret
    Folder      string `yaml:"folder"`       // Destination folder name, must already exist
    Datasource  string `yaml:"datasource"`   // Data source name registered on the server
    Timeout     string `yaml:"timeout"`      // HTTP client timeout, e.g. "30s"
}

type Notify struct {
    WebhookURL string   `yaml:"webhook_url"`
    Events     []string `yaml:"events"` // "completed", "failed"
}

// Pipeline holds defaults for full runs; flags override these.
type Pipeline struct {
    SkipPrepare bool `yaml:"skip_prepare"` // Skip the table preparation stage
    KeepLocal   bool `yaml:"keep_local"`   // Keep downloaded artifacts after a run
    Backup      bool `yaml:"backup"`       // Back up the table before layout changes
}
