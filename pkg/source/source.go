// Package source provides the event-source implementations the pipeline
// fetches raw batches from: a polling REST endpoint and an object-storage
// file drop.
package source

import (
	"context"

	"github.com/veldtlabs/bannerlake/pkg/normalize"
)

// Source delivers one raw batch per call. An empty batch with a nil error is
// a valid outcome meaning there is nothing to process.
type Source interface {
	Fetch(ctx context.Context) ([]normalize.Record, error)
}

// Archiver is implemented by sources whose input should be moved out of the
// way after a successful run.
type Archiver interface {
	Archive(ctx context.Context) error
}
