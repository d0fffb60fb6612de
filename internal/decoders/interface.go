// Package decoders holds the contract shared by the per-format decoders and
// the token and identifier helpers they have in common.
package decoders

import (
	"context"
	"io"

	"github.com/chrissnell/oceandata/internal/types"
)

// Decoder turns one input stream into raw records.  Warnings describe
// records that were skipped; a returned error means the whole file is
// unusable and no records are returned with it.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, source string) ([]types.RawRecord, []string, error)
	Name() string
}

// FileDecoder is implemented by decoders that need random access to the file
// (netCDF) instead of a stream.
type FileDecoder interface {
	DecodeFile(ctx context.Context, path string) ([]types.RawRecord, []string, error)
	Name() string
}
