package vectorutils

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/flat"
	"github.com/papercomputeco/polar/pkg/vector/pgvector"
	"github.com/papercomputeco/polar/pkg/vector/qdrant"
	"github.com/papercomputeco/polar/pkg/vector/sqlitevec"
)

// Provider names accepted by NewFactory.
const (
	ProviderFlat      = "flat"
	ProviderSQLiteVec = "sqlite-vec"
	ProviderPgvector  = "pgvector"
	ProviderQdrant    = "qdrant"
)

type NewFactoryOpts struct {
	ProviderType string

	// Target is the sqlite-vec database path, the pgvector DSN or the
	// Qdrant host:port, depending on the provider.
	Target     string
	Collection string
	Metric     string
	Dimensions uint
	Logger     *slog.Logger
}

func NewFactory(o *NewFactoryOpts) (vector.Factory, error) {
	metric, err := vector.ParseMetric(o.Metric)
	if err != nil {
		return nil, err
	}
	dims := int(o.Dimensions)

	switch o.ProviderType {
	case ProviderFlat, "":
		return flat.NewFactory(flat.Config{
			Metric:     metric,
			Dimensions: dims,
		}), nil
	case ProviderSQLiteVec:
		if o.Target == "" {
			return nil, errors.New("sqlite-vec provider requires a database path")
		}
		return sqlitevec.NewFactory(sqlitevec.Config{
			DBPath:     o.Target,
			Table:      o.Collection,
			Metric:     metric,
			Dimensions: dims,
			Logger:     o.Logger,
		}), nil
	case ProviderPgvector:
		return pgvector.NewFactory(pgvector.Config{
			DSN:        o.Target,
			Table:      o.Collection,
			Metric:     metric,
			Dimensions: dims,
			Logger:     o.Logger,
		}), nil
	case ProviderQdrant:
		return qdrant.NewFactory(qdrant.Config{
			Target:     o.Target,
			Collection: o.Collection,
			Metric:     metric,
			Dimensions: dims,
			Logger:     o.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
