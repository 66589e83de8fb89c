package models

import (
	"sort"
	"time"
)

// Provenance distinguishes data reserved for fitting from data used as ground truth.
type Provenance string

const (
	ProvenanceTraining   Provenance = "training"
	ProvenanceHistorical Provenance = "historical"
)

// Observation is one hourly value of an asset.
type Observation struct {
	Asset      string     `json:"asset"`
	Timestamp  time.Time  `json:"timestamp"`
	Value      float64    `json:"value"`
	Label      Provenance `json:"label"`
	UploadedAt time.Time  `json:"uploaded_at"`
}

// Point is a (timestamp, value) pair of a series.
type Point struct {
	Timestamp time.Time `json:"timestamp" msgpack:"t"`
	Value     float64   `json:"value" msgpack:"v"`
}

// Series is an ascending, hour-aligned sequence of points.
type Series []Point

// Slice returns the points with from <= timestamp <= to. The result shares storage with s.
func (s Series) Slice(from, to time.Time) Series {
	lo := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(from) })
	hi := sort.Search(len(s), func(i int) bool { return s[i].Timestamp.After(to) })
	if lo >= hi {
		return nil
	}
	return s[lo:hi]
}

func (s Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Timestamp
	}
	return out
}

func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Last returns the newest point.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}
