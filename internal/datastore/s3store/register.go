package s3store

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/contentstore/internal/datastore"
	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/logger"

	_ "github.com/koustreak/contentstore/internal/filestore/awss3"
	_ "github.com/koustreak/contentstore/internal/filestore/minio"
)

// Name is the short name the store registers under.
const Name = "s3"

func init() {
	datastore.Register(Name, open)
}

func open(_ context.Context, decode func(any) error, log *logger.Logger) (datastore.DataStore, error) {
	var cfg Config
	if err := decode(&cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid s3 data store options", err)
	}

	opts := []Option{WithLogger(log)}
	if cfg.Metrics {
		opts = append(opts, WithMetrics(prometheus.DefaultRegisterer))
	}
	return New(cfg, opts...)
}
