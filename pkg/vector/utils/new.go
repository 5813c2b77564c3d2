// Package vectorutils builds a vector driver from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/cohort/pkg/vector"
	"github.com/papercomputeco/cohort/pkg/vector/chroma"
	"github.com/papercomputeco/cohort/pkg/vector/qdrant"
	"github.com/papercomputeco/cohort/pkg/vector/sqlitevec"
)

// NewVectorDriverOpts selects and configures a vector store.
type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is the chroma URL, the qdrant host:port, or the sqlite
	// database path.
	TargetURL      string
	CollectionName string
	Dimensions     uint
	Logger         *slog.Logger
}

// NewVectorDriver builds the vector.Driver named by o.ProviderType.
func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.CollectionName,
			MaxRetries:     5,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Addr:           o.TargetURL,
			CollectionName: o.CollectionName,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	case "sqlite":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
