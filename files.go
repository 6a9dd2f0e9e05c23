package auth

import (
	"context"
	"embed"
	"io/fs"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationsRoot = "data/sql/migrations"

// DefaultPingTimeout bounds the connection check done by persistence.New.
const DefaultPingTimeout = 5 * time.Second

// GetMigrationsFS returns the migration files for this package, one
// directory per dialect under data/sql/migrations.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// PersistenceConfig implements persistence.Config.
type PersistenceConfig struct {
	Debug          bool
	Driver         string
	Server         string
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.Driver
}

func (c PersistenceConfig) GetServer() string {
	return c.Server
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return DefaultPingTimeout
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	return c.OtelIdentifier
}

// RegisterModels queues the package models with persistence. Call it
// before persistence.New.
func RegisterModels() {
	persistence.RegisterModel((*User)(nil))
}

// RegisterMigrations adds the embedded dialect migrations to client.
// The dialect is resolved from the client's database.
func RegisterMigrations(client *persistence.Client) (*persistence.Migrations, error) {
	root, err := fs.Sub(migrationsFS, migrationsRoot)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open migrations")
	}

	return client.RegisterDialectMigrations(root,
		persistence.WithDialectSourceLabel(migrationsRoot),
		persistence.WithValidationTargets("postgres", "sqlite"),
	), nil
}

// Migrate registers the embedded migrations, checks both dialect trees
// stay in step, and applies pending migrations.
func Migrate(ctx context.Context, client *persistence.Client) error {
	if _, err := RegisterMigrations(client); err != nil {
		return err
	}

	if err := client.ValidateDialects(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "migration dialects out of step")
	}

	if err := client.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to run migrations")
	}

	return nil
}
