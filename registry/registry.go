// Package registry maps every dataset to its storage locations, its naming conventions and its key derivation.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/service"
)

// Config holds the root locations of a run
type Config struct {
	InputRoot     string `yaml:"path"`           // Downloaded datasets
	GeneratedRoot string `yaml:"generated_path"` // Generated assets (remote exports, intermediate rasters)
	OutputDir     string `yaml:"out_dir"`        // Final outputs
	TileIndex     string `yaml:"tile_index"`     // Auxiliary tile grid (GeoJSON)
}

// Dirs are the working directories of a dataset
type Dirs struct {
	Generated    string
	Resampled    string
	Reprojected  string
	WaterHistory string
	Radar        string
	Optical      string
}

// Raw returns the directory where the remote exports of the kind land
func (d Dirs) Raw(kind common.AssetKind) (string, error) {
	switch kind {
	case common.KindS2:
		return d.Optical, nil
	case common.KindS1:
		return d.Radar, nil
	case common.KindJRC:
		return d.WaterHistory, nil
	}
	return "", fmt.Errorf("no raw directory for %s", kind)
}

// Create creates all the directories. Existing directories are not an error.
func (d Dirs) Create() error {
	for _, dir := range []string{d.Generated, d.Resampled, d.Reprojected, d.WaterHistory, d.Radar, d.Optical} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("Dirs.Create: %w", err)
		}
	}
	return nil
}

// Asset is a raster file with the key of the event it belongs to
type Asset struct {
	Path string
	Key  string
}

// Source describes a dataset: where its assets are and how keys are derived from their names.
// There is one implementation per dataset.
type Source interface {
	Dataset() common.Dataset
	Dirs() Dirs
	// Patterns returns the glob patterns of the present assets of the kind
	Patterns(kind common.AssetKind) []string
	// Key derives the event key from the path of an asset of the kind
	Key(kind common.AssetKind, path string) (string, error)
	// DateWindow returns the number of days before and after the event date to search imagery
	DateWindow() (minusDays, plusDays int)
	// GroundTruth returns the remapping of raster ground truth codes to {0: background, 1: flood, 255: nodata}
	GroundTruth() *common.Remap
}

// Registry resolves dataset tags into Sources
type Registry struct {
	cfg Config
}

// New creates a registry on the root locations of the configuration
func New(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Config returns the configuration of the registry
func (r *Registry) Config() Config {
	return r.cfg
}

// Datasets parses a dataset selector ("all" or a dataset tag)
func (r *Registry) Datasets(selector string) ([]common.Dataset, error) {
	if strings.ToLower(selector) == "all" {
		return common.DatasetValues(), nil
	}
	d, err := common.DatasetString(selector)
	if err != nil {
		return nil, service.UnknownDatasetError{Tag: selector}
	}
	return []common.Dataset{d}, nil
}

// Lookup returns the Source of the dataset tag, creating its working directories
func (r *Registry) Lookup(tag string) (Source, error) {
	d, err := common.DatasetString(tag)
	if err != nil {
		return nil, service.UnknownDatasetError{Tag: tag}
	}
	return r.Source(d)
}

// Source returns the Source of the dataset, creating its working directories
func (r *Registry) Source(d common.Dataset) (Source, error) {
	var src Source
	switch d {
	case common.DatasetWorldFloods:
		src = worldFloods{base{r.cfg, dirs(r.cfg, "WorldFloods", "WORLDFLOODS")}}
	case common.DatasetSen1Floods11:
		src = sen1Floods11{base{r.cfg, dirs(r.cfg, "Sen1Floods11", "SEN1FLOODS11")}}
	case common.DatasetUSGS:
		src = usgs{base{r.cfg, dirs(r.cfg, "usgs", "usgs")}}
	case common.DatasetUNOSAT:
		src = unosat{base{r.cfg, dirs(r.cfg, "unosat", "unosat")}}
	default:
		return nil, service.UnknownDatasetError{Tag: d.String()}
	}
	if err := src.Dirs().Create(); err != nil {
		return nil, fmt.Errorf("Source[%s].%w", d, err)
	}
	return src, nil
}

func dirs(cfg Config, dir, suffix string) Dirs {
	generated := filepath.Join(cfg.GeneratedRoot, "global_flood_training", "data", dir, "generated")
	return Dirs{
		Generated:    generated,
		Resampled:    filepath.Join(generated, "resampled"),
		Reprojected:  filepath.Join(generated, "reprojected"),
		WaterHistory: filepath.Join(generated, "JRC_"+suffix),
		Radar:        filepath.Join(generated, "S1_"+suffix),
		Optical:      filepath.Join(generated, "S2_"+suffix),
	}
}

// Enumerate lists the present assets of the kind, sorted by path, with their keys.
// Files whose names cannot be parsed are ignored.
func Enumerate(src Source, kind common.AssetKind) []Asset {
	paths := service.StringSet{}
	for _, pattern := range src.Patterns(kind) {
		matches, _ := filepath.Glob(pattern) // Only ErrBadPattern
		for _, m := range matches {
			paths.Push(m)
		}
	}
	assets := make([]Asset, 0, len(paths))
	for _, p := range paths.Slice() {
		if key, err := src.Key(kind, p); err == nil {
			assets = append(assets, Asset{Path: p, Key: key})
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Path < assets[j].Path })
	return assets
}

// OutputPath returns the path of a final output in the output directory
func (r *Registry) OutputPath(name string) string {
	return filepath.Join(r.cfg.OutputDir, name)
}

// Exists returns true if the file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
