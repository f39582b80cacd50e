package common

import (
	"fmt"
	"math"
	"time"
)

// BBox is a geographic bounding box in degrees (EPSG:4326)
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Centroid returns the (lon, lat) center of the box
func (b BBox) Centroid() (float64, float64) {
	return (b.West + b.East) / 2, (b.South + b.North) / 2
}

// Valid returns true if the box is ordered and within the geographic domain
func (b BBox) Valid() bool {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.West <= b.East && b.South <= b.North &&
		b.West >= -180 && b.East <= 180 && b.South >= -90 && b.North <= 90
}

// Intersects returns true if the boxes share at least one point
func (b BBox) Intersects(o BBox) bool {
	return b.West <= o.East && o.West <= b.East && b.South <= o.North && o.South <= b.North
}

// WKT returns the box as a WKT polygon
func (b BBox) WKT() string {
	return fmt.Sprintf("POLYGON ((%[1]v %[2]v, %[3]v %[2]v, %[3]v %[4]v, %[1]v %[4]v, %[1]v %[2]v))", b.West, b.South, b.East, b.North)
}

// DateRange is a closed range of dates
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange returns [date-minusDays, date+plusDays]
func NewDateRange(date time.Time, minusDays, plusDays int) DateRange {
	return DateRange{
		Start: date.AddDate(0, 0, -minusDays),
		End:   date.AddDate(0, 0, plusDays),
	}
}

func (d DateRange) String() string {
	return d.Start.Format("2006-01-02") + "/" + d.End.Format("2006-01-02")
}

// Event is one flood occurrence of a dataset, with one ground truth record.
type Event struct {
	Dataset Dataset   `json:"dataset"`
	Key     string    `json:"key"`
	Tile    string    `json:"tile,omitempty"`
	Name    string    `json:"name"` // Raw identifier the key is derived from
	BBox    BBox      `json:"bbox"`
	Dates   DateRange `json:"dates"`
	// GroundTruth is the path of the ground truth raster (datasets with raster ground truth)
	GroundTruth string `json:"ground_truth,omitempty"`
	// Geometry is the WKT of the flood polygon in EPSG:4326 (datasets with vector ground truth)
	Geometry string `json:"geometry,omitempty"`
}

// ID returns the identifier of the event used in file names and by the indexer: key[_tile]
func (e Event) ID() string {
	if e.Tile == "" {
		return e.Key
	}
	return e.Key + "_" + e.Tile
}

// Date returns the reference date of the event
func (e Event) Date() time.Time {
	return e.Dates.Start
}
