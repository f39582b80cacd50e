package pipeline_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/floodsnet/floodprep/alignment"
	"github.com/floodsnet/floodprep/classification"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/floodsnet/floodprep/interface/imagery/memory"
	"github.com/floodsnet/floodprep/interface/vector"
	"github.com/floodsnet/floodprep/registry"
)

// Resolutions of the rasters written by the fixtures (degrees)
const (
	opticalRes = 0.0002
	historyRes = 0.01
)

// Values of the optical bands: NDWI = (2000-1000)/(2000+1000) = 3333
const (
	greenValue = 2000
	nirValue   = 1000
	otherValue = 500
)

// opticalRegion is the footprint of the optical captures of the fixtures
var opticalRegion = common.BBox{West: 10.24, South: 45.258, East: 10.242, North: 45.26}

func opticalValue(band, col, row int) float64 {
	switch band + 1 {
	case classification.GreenBand:
		return greenValue
	case classification.NIRBand:
		return nirValue
	}
	return otherValue
}

func wgs84WKT() (string, error) {
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return "", err
	}
	defer sr.Close()
	return sr.WKT()
}

func regionGrid(region common.BBox, res float64) (alignment.Grid, error) {
	wkt, err := wgs84WKT()
	if err != nil {
		return alignment.Grid{}, err
	}
	return alignment.Grid{
		Projection:   wkt,
		GeoTransform: [6]float64{region.West, res, 0, region.North, 0, -res},
		Width:        int(math.Max(1, math.Round((region.East-region.West)/res))),
		Height:       int(math.Max(1, math.Round((region.North-region.South)/res))),
	}, nil
}

// writeRaster writes a raster in EPSG:4326 covering the region
func writeRaster(path string, region common.BBox, res float64, nbands int, dt godal.DataType, value func(band, col, row int) float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	grid, err := regionGrid(region, res)
	if err != nil {
		return err
	}
	ds, err := alignment.Create(path, grid, nbands, dt)
	if err != nil {
		return err
	}
	for b, band := range ds.Bands() {
		data := make([]float64, grid.Width*grid.Height)
		for row := 0; row < grid.Height; row++ {
			for col := 0; col < grid.Width; col++ {
				data[row*grid.Width+col] = value(b, col, row)
			}
		}
		if err := band.Write(0, 0, data, grid.Width, grid.Height); err != nil {
			ds.Close()
			return err
		}
	}
	return ds.Close()
}

// writeWaterHistory classifies a synthetic history over the region: permanent water west of 10.25°E,
// seasonal water (one wet month in the window) elsewhere
func writeWaterHistory(path string, w classification.Window, region common.BBox) error {
	grid, err := regionGrid(region, historyRes)
	if err != nil {
		return err
	}
	n := grid.Width * grid.Height
	yearly := [2][]int{make([]int, n), make([]int, n)}
	months := w.Months()
	monthly := make([][]int, len(months))
	for m := range monthly {
		monthly[m] = make([]int, n)
	}
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			i := row*grid.Width + col
			lon := region.West + (float64(col)+0.5)*historyRes
			for y := range yearly {
				if lon < 10.25 {
					yearly[y][i] = classification.YearlyPermanent
				} else {
					yearly[y][i] = classification.YearlyNotWater
				}
			}
			for m := range monthly {
				if m == 0 {
					monthly[m][i] = classification.MonthlyWater
				} else {
					monthly[m][i] = classification.MonthlyNotWater
				}
			}
		}
	}
	classes, err := classification.ClassifyWaterHistory(w, yearly, monthly)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return classification.WriteClasses(path, grid, classes)
}

// producer writes the exports of the in-memory service into the raw directories of the dataset
func producer(dirs registry.Dirs) memory.Producer {
	return func(ctx context.Context, req imagery.ExportRequest) error {
		dir, err := dirs.Raw(req.Kind)
		if err != nil {
			return err
		}
		if filepath.Base(dir) != req.Folder {
			return fmt.Errorf("unexpected folder %s for %s", req.Folder, req.Kind)
		}
		dst := filepath.Join(dir, req.Name+common.Ext)
		switch req.Kind {
		case common.KindS2:
			return writeRaster(dst, req.Region, opticalRes, len(imagery.OpticalBands), godal.Int16, opticalValue)
		case common.KindJRC:
			return writeWaterHistory(dst, *req.Window, req.Region)
		}
		return fmt.Errorf("unexpected %s export", req.Kind)
	}
}

// readBand reads the band (1-based) of the raster
func readBand(path string, band int) ([]float64, alignment.Grid, error) {
	grid, err := alignment.ReadGrid(path)
	if err != nil {
		return nil, grid, err
	}
	ds, err := godal.Open(path)
	if err != nil {
		return nil, grid, err
	}
	defer ds.Close()
	data := make([]float64, grid.Width*grid.Height)
	if err := ds.Bands()[band-1].Read(0, 0, data, grid.Width, grid.Height); err != nil {
		return nil, grid, err
	}
	return data, grid, nil
}

func distinct(values []float64) []float64 {
	set := map[float64]struct{}{}
	for _, v := range values {
		set[v] = struct{}{}
	}
	res := make([]float64, 0, len(set))
	for v := range set {
		res = append(res, v)
	}
	sort.Float64s(res)
	return res
}

// snapshotDir returns the content of every file of the directory
func snapshotDir(dir string) (map[string][]byte, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := map[string][]byte{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := ioutil.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files[e.Name()] = b
	}
	return files, nil
}

// fakeVectors is an in-memory vector.Source
type fakeVectors struct {
	layers map[string][]*vector.Layer
}

func (f fakeVectors) ListLayers(ctx context.Context, container string) ([]string, error) {
	var names []string
	for _, l := range f.layers[filepath.Base(container)] {
		names = append(names, l.Name)
	}
	return names, nil
}

func (f fakeVectors) ReadLayer(ctx context.Context, container, name string) (*vector.Layer, error) {
	for _, l := range f.layers[filepath.Base(container)] {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("layer %s not found", name)
}

// recorder is an in-memory messaging.Publisher
type recorder struct {
	mu       sync.Mutex
	messages [][]byte
}

func (r *recorder) Publish(ctx context.Context, data ...[]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, data...)
	return nil
}

func (r *recorder) Messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.messages...)
}
