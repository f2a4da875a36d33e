// Package storageutils builds the configured storage driver.
package storageutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/storage/inmemory"
	"github.com/papercomputeco/polar/pkg/storage/postgres"
	"github.com/papercomputeco/polar/pkg/storage/sqlite"
)

const (
	DriverInMemory = "inmemory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type NewDriverOpts struct {
	DriverType  string
	SQLitePath  string
	PostgresDSN string
}

// NewDriver opens the storage backend named by DriverType. An empty driver
// type selects the in-memory store.
func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.DriverType {
	case DriverInMemory, "":
		return inmemory.NewDriver(), nil
	case DriverSQLite:
		if o.SQLitePath == "" {
			return nil, errors.New("sqlite storage requires a database path")
		}
		d, err := sqlite.NewDriver(ctx, o.SQLitePath)
		if err != nil {
			return nil, err
		}
		return d, nil
	case DriverPostgres:
		if o.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires a connection string")
		}
		d, err := postgres.NewDriver(ctx, o.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", o.DriverType)
	}
}
