package geometry

import (
	"fmt"

	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

var TOLERANCE_GEOG = 0.000001

func WKTUnion(wkts []string, tolerance float64) (string, error) {
	var geoms []*geos.Geometry
	for _, wkt := range wkts {
		geo, err := geos.FromWKT(wkt)
		if err != nil {
			return "", fmt.Errorf("WKTUnion.FromWKT: %w", err)
		}
		geoms = append(geoms, geo)
	}
	aoi, err := Union(geoms, tolerance)
	if err != nil {
		return "", fmt.Errorf("WKTUnion.%w", err)
	}
	wkt, err := aoi.ToWKT()
	if err != nil {
		return "", fmt.Errorf("WKTUnion.ToWKT: %w", err)
	}
	return wkt, nil
}

func Union(geoms []*geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	if len(geoms) == 0 {
		return nil, fmt.Errorf("Union: no geometry")
	}
	aoi, err := UnaryUnion(geoms)
	if err == nil {
		if aoi, err = aoi.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		return aoi, nil
	}
	// Union all failed, retry one by one with simplify
	aoi = nil
	for _, geom := range geoms {
		if geom, err = geom.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		if aoi == nil {
			aoi = geom
		} else if aoi, err = geom.Union(aoi); err != nil {
			return nil, fmt.Errorf("Union: %w", err)
		}
	}
	return aoi, nil
}

func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	aoi, err := geos.NewCollection(geos.GEOMETRYCOLLECTION, geoms...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if aoi, err = aoi.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return aoi, nil
}

// WKTIntersection returns the intersection of the two geometries, and false if it is empty
func WKTIntersection(wkt1, wkt2 string) (string, bool, error) {
	g1, err := geos.FromWKT(wkt1)
	if err != nil {
		return "", false, fmt.Errorf("WKTIntersection.FromWKT: %w", err)
	}
	g2, err := geos.FromWKT(wkt2)
	if err != nil {
		return "", false, fmt.Errorf("WKTIntersection.FromWKT: %w", err)
	}
	inter, err := g1.Intersection(g2)
	if err != nil {
		return "", false, fmt.Errorf("WKTIntersection.Intersection: %w", err)
	}
	if empty, err := inter.IsEmpty(); err != nil {
		return "", false, fmt.Errorf("WKTIntersection.IsEmpty: %w", err)
	} else if empty {
		return "", false, nil
	}
	wkt, err := inter.ToWKT()
	if err != nil {
		return "", false, fmt.Errorf("WKTIntersection.ToWKT: %w", err)
	}
	return wkt, true, nil
}

// WKTBounds returns the extent of the geometry as (minx, miny, maxx, maxy)
func WKTBounds(wkt string) ([4]float64, error) {
	g, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return [4]float64{}, fmt.Errorf("WKTBounds.DecodeString: %w", err)
	}
	ext, err := geom.NewExtentFromGeometry(g)
	if err != nil {
		return [4]float64{}, fmt.Errorf("WKTBounds.Extent: %w", err)
	}
	return [4]float64{ext.MinX(), ext.MinY(), ext.MaxX(), ext.MaxY()}, nil
}
