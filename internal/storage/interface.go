// Package storage defines the result sinks classified datasets are written to.
package storage

import (
	"context"

	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/types"
)

// Sink stores the outcome of processing one file.  ds is nil when the file
// failed; the report is stored regardless.
type Sink interface {
	Store(ctx context.Context, r *report.Report, ds *types.Dataset) error
	Close() error
}
