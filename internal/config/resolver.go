package config

import (
    "fmt"

    "retflow/internal/secrets"
    "retflow/pkg/errors"
    "retflow/pkg/models"
)

// Resolver resolves credential references in the configuration through
// the credential store. Config files carry references only; the secret
// values live in the OS keyring or the encrypted fallback store.
type Resolver struct {
    store *secrets.Store
}

// NewResolver creates a resolver backed by the default credential store
func NewResolver() (*Resolver, error) {
    store, err := secrets.NewStore()
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrCodeInitialization, "Failed to open credential store")
    }
    return &Resolver{store: store}, nil
}

// NewResolverWithStore creates a resolver with an explicit store
func NewResolverWithStore(store *secrets.Store) *Resolver {
    return &Resolver{store: store}
}

// WarehousePassword resolves the warehouse password reference
func (r *Resolver) WarehousePassword(cfg *models.Config) (string, error) {
    return r.resolve(cfg.Warehouse.PasswordRef, "warehouse", "warehouse.password_ref")
}

// DashboardPassword resolves the dashboard password reference
func (r *Resolver) DashboardPassword(cfg *models.Config) (string, error) {
    return r.resolve(cfg.Dashboard.PasswordRef, "dashboard", "dashboard.password_ref")
}

func (r *Resolver) resolve(ref, defaultRef, field string) (string, error) {
    if ref == "" {
        ref = defaultRef
    }

    cred, err := r.store.Get(ref)
    if err != nil {
        return "", errors.Wrap(err, errors.ErrCodeSecretNotFound,
            fmt.Sprintf("No credential stored under %q", ref)).
            WithContext("field", field).
            WithSuggestions(
                fmt.Sprintf("Run 'retflow secret set %s' to store it", ref),
                "Run 'retflow secret list' to see stored credentials",
            )
    }
    return cred.Value, nil
}
