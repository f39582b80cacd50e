package registry

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/floodsnet/floodprep/common"
)

type base struct {
	cfg  Config
	dirs Dirs
}

func (b base) Dirs() Dirs {
	return b.dirs
}

func (b base) DateWindow() (int, int) {
	return 0, 1
}

// generated returns the pattern of the remote exports of the kind
func (b base) generated(kind common.AssetKind) string {
	dir, err := b.dirs.Raw(kind)
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "*"+common.Ext)
}

// rawID returns the event id of a remote export (optionally split by the remote service)
func rawID(path string) (string, error) {
	name := common.Stem(path)
	if b, ok := common.SplitBase(name); ok {
		name = b
	}
	info, err := common.Info(name)
	if err != nil {
		return "", err
	}
	return info["ID"], nil
}

func firstTokens(path string, n int) (string, error) {
	tokens := strings.Split(common.Stem(path), "_")
	if len(tokens) < n {
		return "", fmt.Errorf("%s: expecting at least %d tokens", path, n)
	}
	return strings.Join(tokens[:n], "_"), nil
}

// worldFloods: WorldFloods v1, gt/S2 pairs named after the event
type worldFloods struct{ base }

func (worldFloods) Dataset() common.Dataset { return common.DatasetWorldFloods }

func (s worldFloods) Patterns(kind common.AssetKind) []string {
	downloaded := filepath.Join(s.cfg.InputRoot, "WorldFloods", "downloaded")
	switch kind {
	case common.KindGT:
		return []string{filepath.Join(downloaded, "*", "gt", "*"+common.Ext)}
	case common.KindS2:
		return []string{filepath.Join(downloaded, "*", "S2", "*"+common.Ext), s.generated(kind)}
	}
	return []string{s.generated(kind)}
}

func (s worldFloods) Key(kind common.AssetKind, path string) (string, error) {
	if kind == common.KindGT && strings.Contains(filepath.ToSlash(path), "/train/") {
		return "", fmt.Errorf("%s: training split is excluded", path)
	}
	if kind == common.KindGT || (kind == common.KindS2 && filepath.Dir(path) != s.dirs.Optical) {
		return common.Stem(path), nil
	}
	return rawID(path)
}

func (worldFloods) GroundTruth() *common.Remap {
	// 0: invalid, 1: land, 2: water, 3: cloud
	return &common.Remap{From: []int{0, 1, 2, 3}, To: []int{255, 0, 1, 0}, Default: 255}
}

// sen1Floods11: hand labeled chips named {country}_{id}_{layer}
type sen1Floods11 struct{ base }

func (sen1Floods11) Dataset() common.Dataset { return common.DatasetSen1Floods11 }

func (s sen1Floods11) Patterns(kind common.AssetKind) []string {
	downloaded := filepath.Join(s.cfg.InputRoot, "Sen1Floods11", "downloaded")
	handLabeled := filepath.Join(downloaded, "*", "data", "flood_events", "HandLabeled")
	switch kind {
	case common.KindGT:
		return []string{filepath.Join(handLabeled, "LabelHand", "*"+common.Ext)}
	case common.KindS2:
		return []string{filepath.Join(handLabeled, "S2Hand", "*"+common.Ext), s.generated(kind)}
	case common.KindS1:
		return []string{filepath.Join(handLabeled, "S1Hand", "*"+common.Ext), s.generated(kind)}
	case common.KindJRC:
		return []string{filepath.Join(downloaded, "JRC_WORLDFLOODS", "*"+common.Ext), s.generated(kind)}
	}
	return nil
}

func (sen1Floods11) Key(kind common.AssetKind, path string) (string, error) {
	return firstTokens(path, 2)
}

func (sen1Floods11) GroundTruth() *common.Remap {
	// -1: nodata, 0: not water, 1: water
	return &common.Remap{From: []int{-1, 0, 1}, To: []int{255, 0, 1}, Default: 255}
}

// usgs: flood training rasters whose names start with an 8 characters identifier
type usgs struct{ base }

func (usgs) Dataset() common.Dataset { return common.DatasetUSGS }

func (s usgs) Patterns(kind common.AssetKind) []string {
	if kind == common.KindGT {
		return []string{filepath.Join(s.cfg.InputRoot, "USGS_FloodTraining", "downloaded", "RasterData_and_Metadata", "*"+common.Ext)}
	}
	return []string{s.generated(kind)}
}

func (usgs) Key(kind common.AssetKind, path string) (string, error) {
	name := filepath.Base(path)
	if len(name) < 8 {
		return "", fmt.Errorf("%s: name too short", path)
	}
	return name[:8], nil
}

func (usgs) GroundTruth() *common.Remap {
	return &common.Remap{From: []int{1}, To: []int{1}, Default: 0}
}

// unosat: flood geodatabases. The ground truth is vectorial: events are (layer, tile) pairs
// identified by a digest of the layer (the remote service limits the length of job names).
type unosat struct{ base }

func (unosat) Dataset() common.Dataset { return common.DatasetUNOSAT }

func (s unosat) Patterns(kind common.AssetKind) []string {
	if kind == common.KindGT {
		return nil
	}
	return []string{s.generated(kind)}
}

func (unosat) Key(kind common.AssetKind, path string) (string, error) {
	if kind == common.KindGT {
		return "", fmt.Errorf("%s: vector ground truth has no raster key", path)
	}
	return rawID(path)
}

func (unosat) DateWindow() (int, int) {
	return 0, 4
}

func (unosat) GroundTruth() *common.Remap {
	return nil
}

// Containers returns the geodatabases of the UNOSAT dataset
func Containers(cfg Config) ([]string, error) {
	gdbs, err := filepath.Glob(filepath.Join(cfg.InputRoot, "UNOSAT_SAR", "downloaded", "*gdb"))
	if err != nil {
		return nil, fmt.Errorf("Containers.Glob: %w", err)
	}
	return gdbs, nil
}

// UNOSATKey returns the key of a flood layer of a geodatabase
func UNOSATKey(container, layer string) string {
	return common.HashKey(common.Stem(container) + "_" + layer)
}
