package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/metadata"
	"github.com/floodsnet/floodprep/interface/vector"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/geometry"
	"github.com/floodsnet/floodprep/service/log"
)

// discover returns the events of the dataset and the ground truth records to index them:
// raster ground truth files for the datasets having some, one record per (layer, tile) otherwise.
func (p *Pipeline) discover(ctx context.Context, src registry.Source) ([]common.Event, []registry.Asset, error) {
	if src.GroundTruth() != nil {
		return p.rasterEvents(ctx, src)
	}
	return p.vectorEvents(ctx, src)
}

// rasterEvents: one event per ground truth raster, dated and located by the metadata of the dataset
func (p *Pipeline) rasterEvents(ctx context.Context, src registry.Source) ([]common.Event, []registry.Asset, error) {
	reader, err := p.metadata(p.registry.Config(), src.Dataset())
	if err != nil {
		return nil, nil, service.MakeFatal(fmt.Errorf("rasterEvents.%w", err))
	}
	minus, plus := src.DateWindow()

	var events []common.Event
	var gts []registry.Asset
	seen := service.StringSet{}
	for _, gt := range registry.Enumerate(src, common.KindGT) {
		gts = append(gts, gt)
		if seen.Exists(gt.Key) {
			continue
		}
		seen.Push(gt.Key)
		e := common.Event{
			Dataset:     src.Dataset(),
			Key:         gt.Key,
			Name:        common.Stem(gt.Path),
			GroundTruth: gt.Path,
		}
		dates, bbox, err := metadata.ReadDateAndBBox(ctx, reader, gt.Key, minus, plus)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			ectx := log.With(ctx, "event", e.ID())
			log.Logger(ectx).Sugar().Warnf("event dropped: %v", err)
			p.finish(ectx, e, common.EventDropped, err.Error(), nil)
			continue
		}
		e.Dates, e.BBox = dates, bbox
		events = append(events, e)
	}
	return events, gts, nil
}

// vectorEvents: the flood layers of the containers are clipped by the tiles of the auxiliary grid.
// One event per non empty (layer, tile) intersection.
func (p *Pipeline) vectorEvents(ctx context.Context, src registry.Source) ([]common.Event, []registry.Asset, error) {
	lg := log.Logger(ctx).Sugar()
	cfg := p.registry.Config()
	if cfg.TileIndex == "" {
		return nil, nil, service.MakeFatal(fmt.Errorf("vectorEvents: a tile index is required for %s", src.Dataset()))
	}
	tiles, err := service.LoadTileIndex(ctx, cfg.TileIndex, src.Dirs().Generated)
	if err != nil {
		return nil, nil, service.MakeFatal(fmt.Errorf("vectorEvents.%w", err))
	}
	containers, err := registry.Containers(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("vectorEvents.%w", err)
	}
	minus, plus := src.DateWindow()

	var events []common.Event
	var gts []registry.Asset
	for _, container := range containers {
		layers, err := p.vectors.ListLayers(ctx, container)
		if err != nil {
			lg.Warnf("%s ignored: %v", filepath.Base(container), err)
			continue
		}
		for _, name := range vector.FloodLayers(layers) {
			key := registry.UNOSATKey(container, name)
			p.keys[key] = common.Stem(container) + "_" + name
			layerEvents, err := p.layerEvents(ctx, src, container, name, key, tiles, minus, plus)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				lctx := log.With(ctx, "event", key)
				log.Logger(lctx).Sugar().Warnf("layer %s dropped: %v", name, err)
				p.finish(lctx, common.Event{Dataset: src.Dataset(), Key: key, Name: name}, common.EventDropped, err.Error(), nil)
				continue
			}
			for _, e := range layerEvents {
				events = append(events, e)
				gts = append(gts, registry.Asset{Path: container + "#" + name, Key: e.ID()})
			}
		}
	}
	return events, gts, nil
}

func (p *Pipeline) layerEvents(ctx context.Context, src registry.Source, container, name, key string, tiles []service.Tile, minus, plus int) ([]common.Event, error) {
	layer, err := p.vectors.ReadLayer(ctx, container, name)
	if err != nil {
		return nil, fmt.Errorf("layerEvents.%w", err)
	}
	if len(layer.Geometries) == 0 {
		return nil, fmt.Errorf("layerEvents: layer %s has no geometry", name)
	}
	dates, err := layer.Dates(minus, plus)
	if err != nil {
		return nil, fmt.Errorf("layerEvents.%w", err)
	}
	flood, err := geometry.WKTUnion(layer.Geometries, 0)
	if err != nil {
		return nil, fmt.Errorf("layerEvents.%w", err)
	}
	var events []common.Event
	for _, tile := range tiles {
		inter, ok, err := geometry.WKTIntersection(flood, tile.WKT)
		if err != nil {
			return nil, fmt.Errorf("layerEvents[%s].%w", tile.ID, err)
		}
		if !ok {
			continue
		}
		b, err := geometry.WKTBounds(inter)
		if err != nil {
			return nil, fmt.Errorf("layerEvents[%s].%w", tile.ID, err)
		}
		events = append(events, common.Event{
			Dataset:  src.Dataset(),
			Key:      key,
			Tile:     tile.ID,
			Name:     name,
			BBox:     common.BBox{West: b[0], South: b[1], East: b[2], North: b[3]},
			Dates:    dates,
			Geometry: inter,
		})
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("layerEvents: layer %s does not intersect the tile index", name)
	}
	return events, nil
}
