package models

import "fmt"

// Validate checks the whole configuration. Error messages carry the
// yaml field path of the offending value.
func (c *Config) Validate() error {
    if err := c.Warehouse.Validate(); err != nil {
        return err
    }
    if err := c.Storage.Validate(); err != nil {
        return err
    }
    if err := c.Retention.Validate(); err != nil {
        return err
    }
    if err := c.Dashboard.Validate(); err != nil {
        return err
    }
    return nil
}

// Validate checks the warehouse connection settings for the configured
// dialect.
func (w *Warehouse) Validate() error {
    switch w.Dialect {
    case "", "redshift":
        if w.Host == "" {
            return fmt.Errorf("warehouse.host is required for redshift")
        }
        if w.Port == 0 {
            return fmt.Errorf("warehouse.port is required for redshift")
        }
    case "snowflake":
        if w.Account == "" {
            return fmt.Errorf("warehouse.account is required for snowflake")
        }
        if w.Warehouse == "" {
            return fmt.Errorf("warehouse.warehouse is required for snowflake")
        }
    default:
        return fmt.Errorf("warehouse.dialect must be \"redshift\" or \"snowflake\", got %q", w.Dialect)
    }

    if w.Username == "" {
        return fmt.Errorf("warehouse.username is required")
    }
    if w.Database == "" {
        return fmt.Errorf("warehouse.database is required")
    }
    return nil
}

func (s *Storage) Validate() error {
    if s.Bucket == "" {
        return fmt.Errorf("storage.bucket is required")
    }
    return nil
}

// Validate checks the sessions source and aggregate output settings.
// Offsets must be positive and strictly increasing; the aggregate and
// converted schemas derive from them.
func (r *Retention) Validate() error {
    required := []struct {
        field string
        value string
    }{
        {"retention.sessions_table", r.SessionsTable},
        {"retention.aggregate_table", r.AggregateTable},
        {"retention.user_column", r.UserColumn},
        {"retention.session_date_column", r.SessionDateColumn},
        {"retention.cohort_date_column", r.CohortDateColumn},
    }
    for _, req := range required {
        if req.value == "" {
            return fmt.Errorf("%s is required", req.field)
        }
    }

    prev := 0
    for _, offset := range r.Offsets {
        if offset <= 0 {
            return fmt.Errorf("retention.offsets must be positive, got %d", offset)
        }
        if offset <= prev {
            return fmt.Errorf("retention.offsets must be strictly increasing, got %d after %d", offset, prev)
        }
        prev = offset
    }
    return nil
}

// Validate checks the dashboard settings. The dashboard is optional;
// an empty base URL disables the publish stage.
func (d *Dashboard) Validate() error {
    if d.BaseURL == "" {
        return nil
    }
    if d.Username == "" {
        return fmt.Errorf("dashboard.username is required when dashboard.base_url is set")
    }
    if d.Folder == "" {
        return fmt.Errorf("dashboard.folder is required when dashboard.base_url is set")
    }
    return nil
}
