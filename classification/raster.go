package classification

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/floodsnet/floodprep/alignment"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/service/log"
)

// Band descriptions of the derived layers
const (
	GroundTruthDescription  = "flood"
	WaterHistoryDescription = "water occurrence"
	IndexDescription        = "NDWI"
)

// Bands of the optical rasters used by the spectral index (1-based)
const (
	GreenBand = 3
	NIRBand   = 8
)

// IndexScale is the scale of the stored spectral index
const IndexScale = 10000

// GroundTruthNoData is the nodata value of the normalized ground truth
const GroundTruthNoData = 255

// NDWI computes the normalized difference water index (green-nir)/(green+nir) scaled by IndexScale.
// Pixels where green+nir is 0 are set to 0. Negative reflectances may push the ratio out of [-1, 1]:
// the result is clamped to [-IndexScale, IndexScale].
func NDWI(green, nir []int32) ([]int16, error) {
	if len(green) != len(nir) {
		return nil, fmt.Errorf("NDWI: bands have different sizes (%d, %d)", len(green), len(nir))
	}
	ndwi := make([]int16, len(green))
	for i := range green {
		g, n := int64(green[i]), int64(nir[i])
		if g+n == 0 {
			continue
		}
		v := IndexScale * (g - n) / (g + n)
		if v > IndexScale {
			v = IndexScale
		} else if v < -IndexScale {
			v = -IndexScale
		}
		ndwi[i] = int16(v)
	}
	return ndwi, nil
}

func readBand(ds *godal.Dataset, band int, buf interface{}) error {
	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return fmt.Errorf("band %d not found (%d bands)", band, len(bands))
	}
	st := ds.Structure()
	return bands[band-1].Read(0, 0, buf, st.SizeX, st.SizeY)
}

func writeBand(dst string, grid alignment.Grid, dt godal.DataType, data interface{}, description string, nodata *float64) error {
	return alignment.Atomically(dst, func(tmp string) error {
		ds, err := alignment.Create(tmp, grid, 1, dt)
		if err != nil {
			return err
		}
		band := ds.Bands()[0]
		if err := band.Write(0, 0, data, grid.Width, grid.Height); err != nil {
			ds.Close()
			return fmt.Errorf("Write: %w", err)
		}
		if err := band.SetDescription(description); err != nil {
			ds.Close()
			return fmt.Errorf("SetDescription: %w", err)
		}
		if nodata != nil {
			if err := band.SetNoData(*nodata); err != nil {
				ds.Close()
				return fmt.Errorf("SetNoData: %w", err)
			}
		}
		return ds.Close()
	})
}

// SpectralIndex computes the NDWI of the optical raster and writes it as an Int16 raster on the same grid
func SpectralIndex(ctx context.Context, optical, dst string) error {
	ds, err := godal.Open(optical, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("SpectralIndex.Open: %w", err)
	}
	defer ds.Close()
	st := ds.Structure()
	green := make([]int32, st.SizeX*st.SizeY)
	nir := make([]int32, st.SizeX*st.SizeY)
	if err := readBand(ds, GreenBand, green); err != nil {
		return fmt.Errorf("SpectralIndex.green: %w", err)
	}
	if err := readBand(ds, NIRBand, nir); err != nil {
		return fmt.Errorf("SpectralIndex.nir: %w", err)
	}
	ndwi, err := NDWI(green, nir)
	if err != nil {
		return fmt.Errorf("SpectralIndex.%w", err)
	}
	grid, err := alignment.ReadGrid(optical)
	if err != nil {
		return fmt.Errorf("SpectralIndex.%w", err)
	}
	if err := writeBand(dst, grid, godal.Int16, ndwi, IndexDescription, nil); err != nil {
		return fmt.Errorf("SpectralIndex(%s): %w", dst, err)
	}
	log.Logger(ctx).Sugar().Infof("%s saved", dst)
	return nil
}

// RasterizeGroundTruth burns the flood polygon (WKT in EPSG:4326) into a Byte raster on the grid of template:
// 1 inside the polygon, 0 elsewhere
func RasterizeGroundTruth(ctx context.Context, wkt, template, dst string) error {
	grid, err := alignment.ReadGrid(template)
	if err != nil {
		return fmt.Errorf("RasterizeGroundTruth.%w", err)
	}
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("RasterizeGroundTruth.NewSpatialRefFromEPSG: %w", err)
	}
	defer wgs84.Close()
	target, err := godal.NewSpatialRefFromWKT(grid.Projection)
	if err != nil {
		return fmt.Errorf("RasterizeGroundTruth.NewSpatialRefFromWKT: %w", err)
	}
	defer target.Close()
	geom, err := godal.NewGeometryFromWKT(wkt, wgs84)
	if err != nil {
		return fmt.Errorf("RasterizeGroundTruth.NewGeometryFromWKT: %w", err)
	}
	defer geom.Close()
	if err := geom.Reproject(target); err != nil {
		return fmt.Errorf("RasterizeGroundTruth.Reproject: %w", err)
	}

	err = alignment.Atomically(dst, func(tmp string) error {
		ds, err := alignment.Create(tmp, grid, 1, godal.Byte)
		if err != nil {
			return err
		}
		if err := ds.RasterizeGeometry(geom, godal.Values(1)); err != nil {
			ds.Close()
			return fmt.Errorf("RasterizeGeometry: %w", err)
		}
		if err := ds.Bands()[0].SetDescription(GroundTruthDescription); err != nil {
			ds.Close()
			return fmt.Errorf("SetDescription: %w", err)
		}
		return ds.Close()
	})
	if err != nil {
		return fmt.Errorf("RasterizeGroundTruth(%s): %w", dst, err)
	}
	log.Logger(ctx).Sugar().Infof("%s saved", dst)
	return nil
}

// NormalizeGroundTruth remaps the codes of a ground truth raster (already on the reference grid) to
// {0: background, 1: flood, 255: nodata}
func NormalizeGroundTruth(ctx context.Context, src string, remap common.Remap, dst string) error {
	ds, err := godal.Open(src, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("NormalizeGroundTruth.Open: %w", err)
	}
	defer ds.Close()
	st := ds.Structure()
	codes := make([]int32, st.SizeX*st.SizeY)
	if err := readBand(ds, 1, codes); err != nil {
		return fmt.Errorf("NormalizeGroundTruth.Read: %w", err)
	}
	mask := make([]byte, len(codes))
	for i, c := range codes {
		mask[i] = byte(remap.Apply(int(c)))
	}
	grid, err := alignment.ReadGrid(src)
	if err != nil {
		return fmt.Errorf("NormalizeGroundTruth.%w", err)
	}
	nodata := float64(GroundTruthNoData)
	if err := writeBand(dst, grid, godal.Byte, mask, GroundTruthDescription, &nodata); err != nil {
		return fmt.Errorf("NormalizeGroundTruth(%s): %w", dst, err)
	}
	log.Logger(ctx).Sugar().Infof("%s saved", dst)
	return nil
}

// WriteClasses writes water occurrence classes into a Byte raster on the grid
func WriteClasses(dst string, grid alignment.Grid, classes []int) error {
	if len(classes) != grid.Width*grid.Height {
		return fmt.Errorf("WriteClasses: %d classes for a %dx%d grid", len(classes), grid.Width, grid.Height)
	}
	data := make([]byte, len(classes))
	for i, c := range classes {
		data[i] = byte(c)
	}
	if err := writeBand(dst, grid, godal.Byte, data, WaterHistoryDescription, nil); err != nil {
		return fmt.Errorf("WriteClasses(%s): %w", dst, err)
	}
	return nil
}
