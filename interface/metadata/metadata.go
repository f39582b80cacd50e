// Package metadata reads the date and the extent of the events from the metadata files of the datasets.
package metadata

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/registry"
)

// Reader reads the metadata of the events of a dataset
type Reader interface {
	// Read returns the acquisition date and the bounding box of the event
	Read(ctx context.Context, key string) (time.Time, common.BBox, error)
}

// ReadDateAndBBox returns the date range [date-minusDays, date+plusDays] and the bounding box of the event
func ReadDateAndBBox(ctx context.Context, r Reader, key string, minusDays, plusDays int) (common.DateRange, common.BBox, error) {
	date, bbox, err := r.Read(ctx, key)
	if err != nil {
		return common.DateRange{}, common.BBox{}, err
	}
	if !bbox.Valid() {
		return common.DateRange{}, common.BBox{}, fmt.Errorf("ReadDateAndBBox[%s]: invalid bounding box %v", key, bbox)
	}
	return common.NewDateRange(date, minusDays, plusDays), bbox, nil
}

// New returns the metadata reader of the dataset. Vector datasets embed their metadata in the layers (see package vector).
func New(cfg registry.Config, d common.Dataset) (Reader, error) {
	downloaded := func(dir string) string { return filepath.Join(cfg.InputRoot, dir, "downloaded") }
	switch d {
	case common.DatasetWorldFloods:
		return worldFloods{pattern: filepath.Join(downloaded("WorldFloods"), "*", "meta", "%s.json")}, nil
	case common.DatasetSen1Floods11:
		return stac{pattern: filepath.Join(downloaded("Sen1Floods11"), "*", "catalog", "sen1floods11_hand_labeled_source", "*", "%s.json")}, nil
	case common.DatasetUSGS:
		return fgdc{pattern: filepath.Join(downloaded("USGS_FloodTraining"), "RasterData_and_Metadata", "%s*.xml")}, nil
	}
	return nil, fmt.Errorf("metadata.New: no metadata file for dataset %s", d)
}

// find returns the first file matching the pattern formatted with the key
func find(pattern, key string) (string, error) {
	files, err := filepath.Glob(fmt.Sprintf(pattern, key))
	if err != nil {
		return "", fmt.Errorf("find: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("find: no metadata for %s", key)
	}
	return files[0], nil
}

// parseDate parses the day of a date (any format, the time of the day is ignored)
func parseDate(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parseDate[%s]: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func bboxOf(v []float64) (common.BBox, error) {
	if len(v) != 4 {
		return common.BBox{}, fmt.Errorf("expecting 4 bounds, got %d", len(v))
	}
	return common.BBox{West: v[0], South: v[1], East: v[2], North: v[3]}, nil
}

func readJSON(file string, v interface{}) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("readJSON: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("readJSON[%s]: %w", file, err)
	}
	return nil
}

// worldFloods: {"satellite date": "...", "bounds": [w, s, e, n]}
type worldFloods struct {
	pattern string
}

func (r worldFloods) Read(ctx context.Context, key string) (time.Time, common.BBox, error) {
	file, err := find(r.pattern, key)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("worldFloods.%w", err)
	}
	var meta struct {
		SatelliteDate string    `json:"satellite date"`
		Bounds        []float64 `json:"bounds"`
	}
	if err := readJSON(file, &meta); err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("worldFloods.%w", err)
	}
	date, err := parseDate(meta.SatelliteDate)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("worldFloods.%w", err)
	}
	bbox, err := bboxOf(meta.Bounds)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("worldFloods[%s]: %w", file, err)
	}
	return date, bbox, nil
}

// stac: STAC item {"properties": {"datetime": "..."}, "bbox": [w, s, e, n]}
type stac struct {
	pattern string
}

func (r stac) Read(ctx context.Context, key string) (time.Time, common.BBox, error) {
	file, err := find(r.pattern, key)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("stac.%w", err)
	}
	var item struct {
		Properties struct {
			Datetime string `json:"datetime"`
		} `json:"properties"`
		BBox []float64 `json:"bbox"`
	}
	if err := readJSON(file, &item); err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("stac.%w", err)
	}
	date, err := parseDate(item.Properties.Datetime)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("stac.%w", err)
	}
	bbox, err := bboxOf(item.BBox)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("stac[%s]: %w", file, err)
	}
	return date, bbox, nil
}

// fgdc: FGDC metadata (xml)
type fgdc struct {
	pattern string
}

type fgdcMetadata struct {
	CalDate  string `xml:"dataqual>lineage>srcinfo>srctime>timeinfo>sngdate>caldate"`
	Bounding struct {
		West  string `xml:"westbc"`
		East  string `xml:"eastbc"`
		North string `xml:"northbc"`
		South string `xml:"southbc"`
	} `xml:"idinfo>spdom>bounding"`
}

func (r fgdc) Read(ctx context.Context, key string) (time.Time, common.BBox, error) {
	file, err := find(r.pattern, key)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("fgdc.%w", err)
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("fgdc.ReadFile: %w", err)
	}
	var meta fgdcMetadata
	if err := xml.Unmarshal(b, &meta); err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("fgdc.Unmarshal[%s]: %w", file, err)
	}
	caldate := strings.TrimSpace(meta.CalDate)
	if len(caldate) < 8 {
		return time.Time{}, common.BBox{}, fmt.Errorf("fgdc[%s]: invalid caldate '%s'", file, caldate)
	}
	date, err := time.Parse("20060102", caldate[:8])
	if err != nil {
		return time.Time{}, common.BBox{}, fmt.Errorf("fgdc[%s]: %w", file, err)
	}
	var bounds []float64
	for _, s := range []string{meta.Bounding.West, meta.Bounding.South, meta.Bounding.East, meta.Bounding.North} {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return time.Time{}, common.BBox{}, fmt.Errorf("fgdc[%s]: invalid bounding: %w", file, err)
		}
		bounds = append(bounds, v)
	}
	bbox, _ := bboxOf(bounds)
	return date, bbox, nil
}
