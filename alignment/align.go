package alignment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/service/log"
)

// Resampling algorithms (gdalwarp -r)
const (
	Nearest  = "near"
	Bilinear = "bilinear"
)

// Method returns the resampling algorithm of the kind: nearest for categorical layers, bilinear otherwise
func Method(kind common.AssetKind) string {
	if kind.Categorical() {
		return Nearest
	}
	return Bilinear
}

// TargetSRS returns the destination CRS of the raster: "" if it is already projected,
// otherwise the UTM projection of the centroid of the box ("EPSG:326zz" or "EPSG:327zz")
func TargetSRS(path string, bbox common.BBox) (string, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return "", fmt.Errorf("TargetSRS.Open: %w", err)
	}
	defer ds.Close()
	if sr := ds.SpatialRef(); sr != nil {
		defer sr.Close()
		if !sr.Geographic() {
			return "", nil
		}
	}
	return "EPSG:" + strconv.Itoa(EventEPSG(bbox)), nil
}

// Atomically writes dst through a temporary file: an interrupted write never leaves a dst behind
func Atomically(dst string, write func(tmp string) error) error {
	tmp := dst + ".tmp" + common.Ext
	os.Remove(tmp)
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func descriptions(ds *godal.Dataset) []string {
	var descs []string
	for _, band := range ds.Bands() {
		descs = append(descs, band.Description())
	}
	return descs
}

func setDescriptions(ds *godal.Dataset, descs []string) error {
	for i, band := range ds.Bands() {
		if i < len(descs) && descs[i] != "" {
			if err := band.SetDescription(descs[i]); err != nil {
				return fmt.Errorf("SetDescription: %w", err)
			}
		}
	}
	return nil
}

// openSource opens a raster and returns its storage type, narrowed if narrow is set
func openSource(ctx context.Context, path string, narrow bool) (*godal.Dataset, godal.DataType, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, 0, fmt.Errorf("Open: %w", err)
	}
	dt, err := DataType(ds, path)
	if err != nil {
		ds.Close()
		return nil, 0, err
	}
	if !narrow {
		return ds, dt, nil
	}
	ndt, narrowed := Narrow(dt)
	if !narrowed {
		log.Logger(ctx).Sugar().Warnf("%s: expecting Int32 or Float64 but got %s, keeping it", path, dt)
	}
	return ds, ndt, nil
}

// Reproject writes src into dst at Resolution in the CRS srs (WKT or "EPSG:n"), narrowing its data type.
// If srs is empty, src is already projected: it is only narrowed and compressed.
func Reproject(ctx context.Context, src, dst, srs string) error {
	ds, dt, err := openSource(ctx, src, true)
	if err != nil {
		return fmt.Errorf("Reproject: %w", err)
	}
	defer ds.Close()
	descs := descriptions(ds)
	err = Atomically(dst, func(tmp string) error {
		var out *godal.Dataset
		var err error
		if srs == "" {
			out, err = ds.Translate(tmp, []string{"-ot", dt.String()}, godal.GTiff, godal.CreationOption(CreationOptions(dt)...))
		} else {
			res := strconv.Itoa(Resolution)
			out, err = ds.Warp(tmp, []string{"-t_srs", srs, "-tr", res, res, "-r", Bilinear, "-ot", dt.String()},
				godal.GTiff, godal.CreationOption(CreationOptions(dt)...))
		}
		if err != nil {
			return err
		}
		if err := setDescriptions(out, descs); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
	if err != nil {
		return fmt.Errorf("Reproject(%s): %w", src, err)
	}
	log.Logger(ctx).Sugar().Debugf("%s reprojected into %s (%s)", src, dst, dt)
	return nil
}

// Mosaic reprojects every source into workdir, in the CRS srs or in the CRS of the first source if srs is empty,
// and mosaics them into dst. 0 is the nodata value of the mosaic: gaps of a source never overwrite the valid pixels
// of another one. The band descriptions are those of the first source.
func Mosaic(ctx context.Context, srcs []string, dst, srs, workdir string) error {
	if len(srcs) == 0 {
		return fmt.Errorf("Mosaic: no source")
	}
	if srs == "" {
		g, err := ReadGrid(srcs[0])
		if err != nil {
			return fmt.Errorf("Mosaic.%w", err)
		}
		srs = g.Projection
	}
	reprojected := make([]string, len(srcs))
	for i, src := range srcs {
		reprojected[i] = filepath.Join(workdir, common.Stem(src)+"_reproj"+common.Ext)
		if err := Reproject(ctx, src, reprojected[i], srs); err != nil {
			return fmt.Errorf("Mosaic.%w", err)
		}
	}
	first, err := godal.Open(reprojected[0], godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("Mosaic.Open: %w", err)
	}
	descs := descriptions(first)
	dt, err := DataType(first, reprojected[0])
	first.Close()
	if err != nil {
		return fmt.Errorf("Mosaic.%w", err)
	}

	vrtPath := filepath.Join(workdir, common.Stem(dst)+".vrt")
	vrt, err := godal.BuildVRT(vrtPath, reprojected, []string{"-srcnodata", "0"})
	if err != nil {
		return fmt.Errorf("Mosaic.BuildVRT: %w", err)
	}
	defer os.Remove(vrtPath)
	defer vrt.Close()
	err = Atomically(dst, func(tmp string) error {
		out, err := vrt.Translate(tmp, []string{"-ot", dt.String()}, godal.GTiff, godal.CreationOption(CreationOptions(dt)...))
		if err != nil {
			return err
		}
		if err := setDescriptions(out, descs); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
	if err != nil {
		return fmt.Errorf("Mosaic.Translate: %w", err)
	}
	log.Logger(ctx).Sugar().Infof("mosaicked %d rasters into %s", len(srcs), dst)
	return nil
}

// Resample warps src onto the grid with the resampling method and writes dst, keeping the data type of src.
// The transform of dst is set to the transform of the grid, bit for bit.
func Resample(ctx context.Context, src, dst string, grid Grid, method string) error {
	ds, dt, err := openSource(ctx, src, false)
	if err != nil {
		return fmt.Errorf("Resample: %w", err)
	}
	defer ds.Close()
	descs := descriptions(ds)
	b := grid.Bounds()
	switches := []string{
		"-t_srs", grid.Projection,
		"-te", formatFloat(b[0]), formatFloat(b[1]), formatFloat(b[2]), formatFloat(b[3]),
		"-ts", strconv.Itoa(grid.Width), strconv.Itoa(grid.Height),
		"-r", method,
		"-ot", dt.String(),
	}
	err = Atomically(dst, func(tmp string) error {
		out, err := ds.Warp(tmp, switches, godal.GTiff, godal.CreationOption(CreationOptions(dt)...))
		if err != nil {
			return err
		}
		if err := out.SetGeoTransform(grid.GeoTransform); err != nil {
			out.Close()
			return fmt.Errorf("SetGeoTransform: %w", err)
		}
		if err := setDescriptions(out, descs); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
	if err != nil {
		return fmt.Errorf("Resample(%s): %w", src, err)
	}
	log.Logger(ctx).Sugar().Debugf("%s resampled into %s (%s)", src, dst, method)
	return nil
}
