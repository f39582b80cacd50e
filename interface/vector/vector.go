// Package vector reads the flood layers of vector ground truth containers (file geodatabases).
package vector

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/araddon/dateparse"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/service/log"
)

// DateField is the attribute holding the sensing date of the flood
const DateField = "Sensor_Date"

var (
	floodRegexp      = regexp.MustCompile(`_Flood_`)
	waterRegexp      = regexp.MustCompile(`_WaterExtent_`)
	cumulativeRegexp = regexp.MustCompile(`_CumulativeFloodWater`)
)

// Layer is a vector layer: its geometries (WKT, EPSG:4326) and the attributes of its features
type Layer struct {
	Name       string
	Geometries []string
	Attributes []map[string]string
}

// Source reads vector containers
type Source interface {
	// ListLayers returns the names of the layers of the container
	ListLayers(ctx context.Context, container string) ([]string, error)
	// ReadLayer returns the features of the layer, reprojected to EPSG:4326
	ReadLayer(ctx context.Context, container, layer string) (*Layer, error)
}

// FloodLayers returns the layers describing a flood extent
func FloodLayers(layers []string) []string {
	var floods []string
	for _, l := range layers {
		if (floodRegexp.MatchString(l) && !strings.Contains(l, "Extent")) || waterRegexp.MatchString(l) || cumulativeRegexp.MatchString(l) {
			floods = append(floods, l)
		}
	}
	return floods
}

// Dates returns the date range of the flood of the layer: [date-minusDays, date+plusDays] where date is
// the first valid sensing date of the features.
// Cumulative layers without sensing date are named {YYYYMMDD}_{DD}_...: the range is [YYYYMMDD, YYYYMM{DD}].
func (l *Layer) Dates(minusDays, plusDays int) (common.DateRange, error) {
	for _, attrs := range l.Attributes {
		if v := strings.TrimSpace(attrs[DateField]); v != "" {
			if date, err := dateparse.ParseIn(v, time.UTC); err == nil {
				day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
				return common.NewDateRange(day, minusDays, plusDays), nil
			}
		}
	}
	if strings.Contains(l.Name, "Cumulative") {
		parts := strings.Split(l.Name, "_")
		if len(parts) >= 2 && len(parts[0]) == 8 {
			start, err1 := time.Parse("20060102", parts[0])
			end, err2 := time.Parse("20060102", parts[0][:6]+parts[1])
			if err1 == nil && err2 == nil {
				if end.Before(start) {
					// The end day is in the following month
					end = end.AddDate(0, 1, 0)
				}
				return common.DateRange{Start: start, End: end}, nil
			}
		}
	}
	return common.DateRange{}, fmt.Errorf("layer %s: no valid %s", l.Name, DateField)
}

// OGR implements Source with GDAL/OGR
type OGR struct{}

// ListLayers implements Source
func (OGR) ListLayers(ctx context.Context, container string) ([]string, error) {
	ds, err := godal.Open(container, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("ListLayers.Open[%s]: %w", container, err)
	}
	defer ds.Close()
	var names []string
	for _, l := range ds.Layers() {
		names = append(names, l.Name())
	}
	return names, nil
}

// ReadLayer implements Source
func (OGR) ReadLayer(ctx context.Context, container, name string) (*Layer, error) {
	ds, err := godal.Open(container, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("ReadLayer.Open[%s]: %w", container, err)
	}
	defer ds.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("ReadLayer.NewSpatialRefFromEPSG: %w", err)
	}
	defer wgs84.Close()

	for _, l := range ds.Layers() {
		if l.Name() != name {
			continue
		}
		layer := &Layer{Name: name}
		l.ResetReading()
		for {
			f := l.NextFeature()
			if f == nil {
				break
			}
			attrs := map[string]string{}
			for k, v := range f.Fields() {
				attrs[k] = v.String()
			}
			layer.Attributes = append(layer.Attributes, attrs)
			if g := f.Geometry(); g != nil && !g.Empty() {
				if err := g.Reproject(wgs84); err != nil {
					log.Logger(ctx).Sugar().Warnf("%s/%s: cannot reproject feature: %v", container, name, err)
				} else if wkt, err := g.WKT(); err == nil {
					layer.Geometries = append(layer.Geometries, wkt)
				}
				g.Close()
			}
			f.Close()
		}
		return layer, nil
	}
	return nil, fmt.Errorf("ReadLayer: layer %s not found in %s", name, container)
}
