package server

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// BuildStatus reports the index size, its load state, disk usage and the active settings.
func BuildStatus(ctx context.Context, d Deps) (*models.StatusReport, error) {
	st := &models.StatusReport{
		Chunks:    d.Store.Len(),
		Dimension: d.Store.Dimension(),
		LoadState: string(d.Store.LoadState()),
		IndexType: string(d.Store.IndexType()),
	}
	if d.Registry != nil {
		n, err := d.Registry.CountSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("count sources: %w", err)
		}
		st.Sources = int(n)
	} else {
		st.Sources = len(d.Store.Sources())
	}

	vectors, meta := d.Store.Paths()
	if cfg := d.Config; cfg != nil {
		st.Config = &models.StatusConfig{
			IndexPath:      vectors,
			MetadataPath:   meta,
			DatabasePath:   cfg.Storage.DatabasePath,
			UploadsDir:     cfg.Storage.UploadsDir,
			MaxWords:       cfg.Chunking.MaxWords,
			Overlap:        cfg.Chunking.Overlap,
			TopK:           cfg.Retrieval.TopK,
			ScoreThreshold: cfg.Retrieval.ScoreThreshold,
			Topic:          cfg.Assistant.Topic,
		}
		if _, total, err := storage.DiskUsage(vectors, meta, cfg.Storage.DatabasePath); err == nil {
			st.DiskUsageBytes = &total
		}
	}
	return st, nil
}

// BuildProviders probes every configured provider in priority order.
func BuildProviders(ctx context.Context, d Deps) *models.ProvidersReport {
	report := &models.ProvidersReport{}
	if d.Embedders != nil {
		report.Embedding = d.Embedders.Statuses(ctx)
	}
	if d.Generators != nil {
		report.Generation = d.Generators.Statuses(ctx)
	}
	return report
}
