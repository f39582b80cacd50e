// Package indexer matches the ground truth of a dataset with its other assets.
package indexer

import (
	"sort"

	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service"
)

// Match is the position of a ground truth in the index and the positions of its matching assets
// (several assets of the same kind may match one ground truth: multi-tile or multi-pass captures)
type Match struct {
	GroundTruth int
	Assets      []int
}

// Index maps the ground truth keys of a dataset to the present assets of each kind
type Index struct {
	groundTruth []registry.Asset
	assets      map[common.AssetKind][]registry.Asset
	byKey       map[common.AssetKind]map[string][]int
}

// New indexes the assets. The order of the lists is preserved.
func New(groundTruth []registry.Asset, assets map[common.AssetKind][]registry.Asset) *Index {
	ix := &Index{
		groundTruth: groundTruth,
		assets:      map[common.AssetKind][]registry.Asset{},
		byKey:       map[common.AssetKind]map[string][]int{},
	}
	for kind, list := range assets {
		ix.assets[kind] = list
		ix.byKey[kind] = map[string][]int{}
		for i, a := range list {
			ix.byKey[kind][a.Key] = append(ix.byKey[kind][a.Key], i)
		}
	}
	return ix
}

// Build enumerates the present assets of every acquirable kind of the source.
// groundTruth is given by the caller (for datasets whose ground truth is not a raster, assets are the events).
func Build(src registry.Source, groundTruth []registry.Asset) *Index {
	assets := map[common.AssetKind][]registry.Asset{}
	for _, kind := range common.AssetKindValues() {
		if kind.Acquirable() {
			assets[kind] = registry.Enumerate(src, kind)
		}
	}
	return New(groundTruth, assets)
}

// GroundTruth returns the indexed ground truth
func (ix *Index) GroundTruth() []registry.Asset {
	return ix.groundTruth
}

// Assets returns the indexed assets of the kind
func (ix *Index) Assets(kind common.AssetKind) []registry.Asset {
	return ix.assets[kind]
}

// Missing returns the keys of the ground truth (in order, once each) that have no asset of the kind
func (ix *Index) Missing(kind common.AssetKind) []string {
	var missing []string
	seen := service.StringSet{}
	for _, gt := range ix.groundTruth {
		if seen.Exists(gt.Key) {
			continue
		}
		seen.Push(gt.Key)
		if len(ix.byKey[kind][gt.Key]) == 0 {
			missing = append(missing, gt.Key)
		}
	}
	return missing
}

// Matched returns the position of every ground truth that has at least one asset of the kind,
// with the positions of these assets in the list of the kind
func (ix *Index) Matched(kind common.AssetKind) []Match {
	var matches []Match
	seen := service.StringSet{}
	for i, gt := range ix.groundTruth {
		if seen.Exists(gt.Key) {
			continue
		}
		seen.Push(gt.Key)
		if pos := ix.byKey[kind][gt.Key]; len(pos) > 0 {
			matches = append(matches, Match{GroundTruth: i, Assets: append([]int(nil), pos...)})
		}
	}
	return matches
}

// Lookup returns the assets of the kind matching the key
func (ix *Index) Lookup(key string, kind common.AssetKind) []registry.Asset {
	var assets []registry.Asset
	for _, i := range ix.byKey[kind][key] {
		assets = append(assets, ix.assets[kind][i])
	}
	return assets
}

// Present returns the kinds having at least one asset matching the key
func (ix *Index) Present(key string) []common.AssetKind {
	var kinds []common.AssetKind
	for kind, keys := range ix.byKey {
		if len(keys[key]) > 0 {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Collisions returns the keys shared by distinct ground truth records
func (ix *Index) Collisions() []string {
	paths := map[string]service.StringSet{}
	for _, gt := range ix.groundTruth {
		if paths[gt.Key] == nil {
			paths[gt.Key] = service.StringSet{}
		}
		paths[gt.Key].Push(gt.Path)
	}
	var keys []string
	for key, p := range paths {
		if len(p) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Report returns the missing keys of every acquirable kind
func (ix *Index) Report() map[common.AssetKind][]string {
	report := map[common.AssetKind][]string{}
	for kind := range ix.assets {
		report[kind] = ix.Missing(kind)
	}
	return report
}
