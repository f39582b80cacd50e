package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cavaliercoder/grab"
	"github.com/go-spatial/geom/encoding/geojson"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
)

// Tile is a cell of the auxiliary tile grid
type Tile struct {
	ID  string
	WKT string // EPSG:4326
}

// tileIDProperties are the feature properties that may hold the identifier of a tile
var tileIDProperties = []string{"identifier", "Name", "name", "TILE_ID"}

// LoadTileIndex reads a GeoJSON FeatureCollection of tiles (local file or http(s) url)
func LoadTileIndex(ctx context.Context, location, workdir string) ([]Tile, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		var err error
		if location, err = FetchFile(ctx, location, workdir); err != nil {
			return nil, fmt.Errorf("LoadTileIndex.%w", err)
		}
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("LoadTileIndex.ReadFile: %w", err)
	}
	return ParseTileIndex(data)
}

// ParseTileIndex parses a GeoJSON FeatureCollection of tiles
func ParseTileIndex(data []byte) ([]Tile, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ParseTileIndex.Unmarshal: %w", err)
	}
	tiles := make([]Tile, 0, len(fc.Features))
	for i, f := range fc.Features {
		var id string
		for _, p := range tileIDProperties {
			if v, ok := f.Properties[p]; ok {
				id = fmt.Sprint(v)
				break
			}
		}
		if id == "" {
			return nil, fmt.Errorf("ParseTileIndex: feature %d has no identifier", i)
		}
		wkt, err := geomwkt.EncodeString(f.Geometry.Geometry)
		if err != nil {
			return nil, fmt.Errorf("ParseTileIndex[%s].EncodeString: %w", id, err)
		}
		tiles = append(tiles, Tile{ID: id, WKT: wkt})
	}
	return tiles, nil
}

// FetchFile downloads the url into the directory and returns the local path
func FetchFile(ctx context.Context, url, dir string) (string, error) {
	req, err := grab.NewRequest(filepath.Join(dir, filepath.Base(url)), url)
	if err != nil {
		return "", fmt.Errorf("FetchFile.NewRequest: %w", err)
	}
	resp := grab.NewClient().Do(req.WithContext(ctx))
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("FetchFile[%s]: %w", url, err)
	}
	return resp.Filename, nil
}

// ToJSON writes v as json in workingdir/filename
func ToJSON(v interface{}, workingdir, filename string) error {
	if workingdir != "" {
		vb, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("toJSON.Marshal: %w", err)
		}
		if err := os.WriteFile(filepath.Join(workingdir, filename), vb, 0644); err != nil {
			return fmt.Errorf("toJSON.WriteFile: %w", err)
		}
	}
	return nil
}
