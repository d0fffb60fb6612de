// Package export writes classified datasets and their reports
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

// Bundle is the unit written for one processed file
type Bundle struct {
	Report  *report.Report
	Dataset *types.Dataset
}

// Sample is the serialized form of a CanonicalSample.  Missing values are
// nil so that they encode as null.
type Sample struct {
	Index           int                `json:"index"`
	StationID       string             `json:"station_id"`
	CastID          string             `json:"cast_id"`
	Timestamp       *time.Time         `json:"timestamp,omitempty"`
	Latitude        *float64           `json:"latitude"`
	Longitude       *float64           `json:"longitude"`
	PressureDbar    *float64           `json:"pressure_dbar"`
	DepthM          *float64           `json:"depth_m"`
	TemperatureC    *float64           `json:"temperature_c"`
	SalinityPSU     *float64           `json:"salinity_psu"`
	OxygenUmolKg    *float64           `json:"oxygen_umol_kg"`
	Nutrients       map[string]float64 `json:"nutrients,omitempty"`
	QualityFlag     string             `json:"quality_flag"`
	WaterMass       string             `json:"water_mass"`
	PressureDerived bool               `json:"pressure_derived,omitempty"`
	DepthDerived    bool               `json:"depth_derived,omitempty"`
}

type document struct {
	Report  *report.Report `json:"report"`
	Source  string         `json:"source,omitempty"`
	Format  string         `json:"format,omitempty"`
	Samples []Sample       `json:"samples"`
}

func optional(v float64) *float64 {
	if !types.Present(v) {
		return nil
	}
	return &v
}

// FromSample converts a sample to its serialized form
func FromSample(s types.CanonicalSample) Sample {
	out := Sample{
		Index:           s.Index,
		StationID:       s.StationID,
		CastID:          s.CastID,
		Latitude:        optional(s.Latitude),
		Longitude:       optional(s.Longitude),
		PressureDbar:    optional(s.PressureDbar),
		DepthM:          optional(s.DepthM),
		TemperatureC:    optional(s.TemperatureC),
		SalinityPSU:     optional(s.SalinityPSU),
		OxygenUmolKg:    optional(s.OxygenUmolKg),
		Nutrients:       s.Nutrients,
		QualityFlag:     s.QualityFlag.String(),
		WaterMass:       s.WaterMass,
		PressureDerived: s.PressureDerived,
		DepthDerived:    s.DepthDerived,
	}
	if out.WaterMass == "" {
		out.WaterMass = types.Unclassified
	}
	if !s.Timestamp.IsZero() {
		ts := s.Timestamp.UTC()
		out.Timestamp = &ts
	}
	return out
}

func (b Bundle) document() document {
	doc := document{Report: b.Report, Samples: []Sample{}}
	if b.Dataset != nil {
		doc.Source = b.Dataset.Source
		doc.Format = b.Dataset.Format
		doc.Samples = make([]Sample, len(b.Dataset.Samples))
		for i, s := range b.Dataset.Samples {
			doc.Samples[i] = FromSample(s)
		}
	}
	return doc
}

// WriteJSON writes the bundle as indented JSON
func WriteJSON(w io.Writer, b Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b.document())
}

// WriteMsgPack writes the bundle as MessagePack using the JSON field names
func WriteMsgPack(w io.Writer, b Bundle) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(b.document())
}

// Write dispatches on one of the config output formats.  ODV and CSV carry
// only the samples.
func Write(w io.Writer, format string, b Bundle) error {
	switch format {
	case "", config.FormatJSON:
		return WriteJSON(w, b)
	case config.FormatMsgPack:
		return WriteMsgPack(w, b)
	case config.FormatODV, config.FormatCSV:
		if b.Dataset == nil {
			return fmt.Errorf("no dataset to write as %s", format)
		}
		if format == config.FormatODV {
			return WriteODV(w, b.Dataset)
		}
		return WriteCSV(w, b.Dataset)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// Extension returns the file extension used for a format
func Extension(format string) string {
	switch format {
	case config.FormatMsgPack:
		return ".msgpack"
	case config.FormatODV:
		return ".odv"
	case config.FormatCSV:
		return ".csv"
	}
	return ".json"
}
