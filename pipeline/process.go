package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/floodsnet/floodprep/alignment"
	"github.com/floodsnet/floodprep/classification"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/indexer"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service/log"
)

// layer is a capture of an event: the raw files of one kind sharing a sub-key (tiles or passes to mosaic)
type layer struct {
	kind  common.AssetKind
	sub   string
	paths []string
}

// layers groups the raw assets of the kind by sub-key, in order of first appearance.
// Assets whose names do not carry a sub-key (downloaded datasets) have an empty sub-key.
func layers(assets []registry.Asset, kind common.AssetKind) []layer {
	var ls []layer
	pos := map[string]int{}
	for _, a := range assets {
		name := a.Path
		if base, ok := common.SplitBase(name); ok {
			name = base
		}
		sub := ""
		if info, err := common.Info(name); err == nil {
			sub = info["SUBKEY"]
		}
		i, ok := pos[sub]
		if !ok {
			i = len(ls)
			pos[sub] = i
			ls = append(ls, layer{kind: kind, sub: sub})
		}
		ls[i].paths = append(ls[i].paths, a.Path)
	}
	return ls
}

// outputs runs the stages whose outputs do not exist yet
type outputs struct {
	exists func(string) bool
	paths  []string
	made   int
}

func (o *outputs) make(path string, f func() error) error {
	o.paths = append(o.paths, path)
	if o.exists(path) {
		return nil
	}
	if err := f(); err != nil {
		return err
	}
	o.made++
	return nil
}

// processEvent aligns the layers of the event on its primary layer (optical if any, else radar) and
// derives the classification and index layers. The event is dropped if it has no primary layer.
// Outputs that already exist are not recomputed: the event is Skipped if all of them exist.
func (p *Pipeline) processEvent(ctx context.Context, src registry.Source, ix *indexer.Index, e common.Event) (common.EventStatus, []string, error) {
	lg := log.Logger(ctx).Sugar()
	dirs := src.Dirs()

	optical := layers(ix.Lookup(e.ID(), common.KindS2), common.KindS2)
	radar := layers(ix.Lookup(e.ID(), common.KindS1), common.KindS1)
	var primary layer
	switch {
	case len(optical) > 0:
		primary, optical = optical[0], optical[1:]
	case len(radar) > 0:
		primary, radar = radar[0], radar[1:]
	default:
		lg.Warnf("event dropped: no optical nor radar layer")
		return common.EventDropped, nil, nil
	}

	o := &outputs{exists: p.exists}
	primaryPath := p.outputPath(e, primary)
	if err := o.make(primaryPath, func() error {
		srs, err := alignment.TargetSRS(primary.paths[0], e.BBox)
		if err != nil {
			return err
		}
		if len(primary.paths) == 1 {
			return alignment.Reproject(ctx, primary.paths[0], primaryPath, srs)
		}
		lg.Infof("mosaicking %d %s files", len(primary.paths), primary.kind)
		return alignment.Mosaic(ctx, primary.paths, primaryPath, srs, dirs.Reprojected)
	}); err != nil {
		return 0, o.paths, fmt.Errorf("processEvent[%s].%w", primary.kind, err)
	}
	grid, err := alignment.ReadGrid(primaryPath)
	if err != nil {
		return 0, o.paths, fmt.Errorf("processEvent.%w", err)
	}

	for _, l := range append(optical, radar...) {
		l := l
		dst := p.outputPath(e, l)
		if err := o.make(dst, func() error { return p.resample(ctx, l, dst, grid, dirs) }); err != nil {
			return 0, o.paths, fmt.Errorf("processEvent[%s].%w", l.kind, err)
		}
	}

	gt := p.registry.OutputPath(common.CanonicalName(e.Dataset, e.Key, common.KindGT, e.Tile))
	if err := o.make(gt, func() error {
		if remap := src.GroundTruth(); remap != nil {
			resampled := filepath.Join(dirs.Resampled, common.ResampledName(e.ID(), common.KindGT))
			if err := alignment.Resample(ctx, e.GroundTruth, resampled, grid, alignment.Method(common.KindGT)); err != nil {
				return err
			}
			return classification.NormalizeGroundTruth(ctx, resampled, *remap, gt)
		}
		return classification.RasterizeGroundTruth(ctx, e.Geometry, primaryPath, gt)
	}); err != nil {
		return 0, o.paths, fmt.Errorf("processEvent[%s].%w", common.KindGT, err)
	}

	if history := layers(ix.Lookup(e.ID(), common.KindJRC), common.KindJRC); len(history) > 0 {
		dst := p.registry.OutputPath(common.CanonicalName(e.Dataset, e.Key, common.KindJRC, e.Tile))
		if err := o.make(dst, func() error { return p.resample(ctx, history[0], dst, grid, dirs) }); err != nil {
			return 0, o.paths, fmt.Errorf("processEvent[%s].%w", common.KindJRC, err)
		}
	} else {
		lg.Warnf("no water history layer")
	}

	if primary.kind == common.KindS2 {
		dst := p.registry.OutputPath(common.IndexName(e.Key, e.Date(), e.Tile))
		if err := o.make(dst, func() error { return classification.SpectralIndex(ctx, primaryPath, dst) }); err != nil {
			return 0, o.paths, fmt.Errorf("processEvent[%s].%w", common.KindNDWI, err)
		}
	}

	if o.made == 0 {
		lg.Infof("all outputs exist: event skipped")
		return common.EventSkipped, o.paths, nil
	}
	lg.Infof("%d output(s) written", o.made)
	return common.EventDone, o.paths, nil
}

// outputPath returns the canonical output of a capture
func (p *Pipeline) outputPath(e common.Event, l layer) string {
	return p.registry.OutputPath(common.CanonicalName(e.Dataset, e.Key, l.kind, l.sub, e.Tile))
}

// resample writes the capture on the grid, mosaicking its files first if needed
func (p *Pipeline) resample(ctx context.Context, l layer, dst string, grid alignment.Grid, dirs registry.Dirs) error {
	src := l.paths[0]
	if len(l.paths) > 1 {
		src = filepath.Join(dirs.Reprojected, common.Stem(dst)+"_mosaic"+common.Ext)
		if err := alignment.Mosaic(ctx, l.paths, src, grid.Projection, dirs.Reprojected); err != nil {
			return err
		}
	}
	return alignment.Resample(ctx, src, dst, grid, alignment.Method(l.kind))
}
