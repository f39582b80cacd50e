// Package alignment reprojects, mosaics and resamples the layers of an event onto one reference grid.
package alignment

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/service"
)

// Resolution of the aligned layers (meters)
const Resolution = 10

// UTMZone returns the UTM zone (1 to 60) of the longitude. Zone z covers [-180+6(z-1), -180+6z[:
// a longitude on a multiple of 6° belongs to the zone east of it, except 180° which belongs to zone 60.
func UTMZone(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		return 1
	}
	if zone > 60 {
		return 60
	}
	return zone
}

// UTMEPSG returns the EPSG code of the WGS84 UTM projection of the point: 326zz in the northern hemisphere
// (latitude ≥ 0), 327zz in the southern hemisphere
func UTMEPSG(lon, lat float64) int {
	if lat < 0 {
		return 32700 + UTMZone(lon)
	}
	return 32600 + UTMZone(lon)
}

// EventEPSG returns the EPSG code of the UTM projection of the centroid of the box
func EventEPSG(b common.BBox) int {
	return UTMEPSG(b.Centroid())
}

// Grid is the georeferencing of a raster
type Grid struct {
	Projection   string
	GeoTransform [6]float64
	Width        int
	Height       int
}

// ReadGrid returns the grid of the raster
func ReadGrid(path string) (Grid, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return Grid{}, fmt.Errorf("ReadGrid.Open: %w", err)
	}
	defer ds.Close()
	return gridOf(ds)
}

func gridOf(ds *godal.Dataset) (Grid, error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return Grid{}, fmt.Errorf("GeoTransform: %w", err)
	}
	st := ds.Structure()
	return Grid{
		Projection:   ds.Projection(),
		GeoTransform: gt,
		Width:        st.SizeX,
		Height:       st.SizeY,
	}, nil
}

// Bounds returns minx, miny, maxx, maxy of a north-up grid
func (g Grid) Bounds() [4]float64 {
	gt := g.GeoTransform
	x0, x1 := gt[0], gt[0]+float64(g.Width)*gt[1]
	y0, y1 := gt[3], gt[3]+float64(g.Height)*gt[5]
	return [4]float64{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// Equal returns true if both grids have exactly the same transform and shape
func (g Grid) Equal(o Grid) bool {
	return g.GeoTransform == o.GeoTransform && g.Width == o.Width && g.Height == o.Height
}

// DataType returns the data type shared by all the bands of the dataset or a MixedDtypeError
func DataType(ds *godal.Dataset, path string) (godal.DataType, error) {
	types := map[godal.DataType]struct{}{}
	var dt godal.DataType
	for _, band := range ds.Bands() {
		dt = band.Structure().DataType
		types[dt] = struct{}{}
	}
	if len(types) > 1 {
		names := make([]string, 0, len(types))
		for t := range types {
			names = append(names, t.String())
		}
		sort.Strings(names)
		return dt, service.MixedDtypeError{Path: path, Types: names}
	}
	return dt, nil
}

// Narrow returns the storage type of a reprojected layer: Int32 is narrowed to Int16, Float64 to Float32.
// Other types are kept (narrowed=false).
func Narrow(dt godal.DataType) (_ godal.DataType, narrowed bool) {
	switch dt {
	case godal.Int32:
		return godal.Int16, true
	case godal.Float64:
		return godal.Float32, true
	}
	return dt, false
}

// Predictor returns the TIFF predictor of the data type: 3 for floating point, 2 otherwise
func Predictor(dt godal.DataType) int {
	if dt == godal.Float32 || dt == godal.Float64 {
		return 3
	}
	return 2
}

// CreationOptions returns the GeoTIFF creation options of a layer of the data type
func CreationOptions(dt godal.DataType) []string {
	return []string{
		"TILED=YES",
		"COMPRESS=LZW",
		"INTERLEAVE=BAND",
		"PREDICTOR=" + strconv.Itoa(Predictor(dt)),
		"NUM_THREADS=ALL_CPUS",
		"TFW=NO",
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Create creates a GeoTIFF on the grid
func Create(path string, grid Grid, nbands int, dt godal.DataType) (*godal.Dataset, error) {
	ds, err := godal.Create(godal.GTiff, path, nbands, dt, grid.Width, grid.Height, godal.CreationOption(CreationOptions(dt)...))
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if err := ds.SetGeoTransform(grid.GeoTransform); err != nil {
		ds.Close()
		return nil, fmt.Errorf("Create.SetGeoTransform: %w", err)
	}
	if err := ds.SetProjection(grid.Projection); err != nil {
		ds.Close()
		return nil, fmt.Errorf("Create.SetProjection: %w", err)
	}
	return ds, nil
}
