package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/google/go-cmp/cmp"
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

func TestFloodLayers(t *testing.T) {
	layers := []string{
		"S1_20191217_Flood_Area",
		"S1_20191217_Flood_Extent",
		"S2_20191218_WaterExtent_Mozambique",
		"20191217_21_CumulativeFloodWater",
		"Admin_Boundaries",
	}
	expected := []string{"S1_20191217_Flood_Area", "S2_20191218_WaterExtent_Mozambique", "20191217_21_CumulativeFloodWater"}
	if diff := cmp.Diff(expected, FloodLayers(layers)); diff != "" {
		t.Error(diff)
	}
}

func TestDates(t *testing.T) {
	day := func(m time.Month, d int) time.Time { return time.Date(2019, m, d, 0, 0, 0, 0, time.UTC) }

	l := &Layer{Name: "S1_20191217_Flood_Area", Attributes: []map[string]string{{DateField: ""}, {DateField: "2019/12/17 04:25:00"}}}
	dates, err := l.Dates(0, 4)
	if err != nil || !dates.Start.Equal(day(12, 17)) || !dates.End.Equal(day(12, 21)) {
		t.Errorf("sensing date: %s %v", dates, err)
	}

	l = &Layer{Name: "20191217_21_CumulativeFloodWater", Attributes: []map[string]string{{}}}
	dates, err = l.Dates(0, 4)
	if err != nil || !dates.Start.Equal(day(12, 17)) || !dates.End.Equal(day(12, 21)) {
		t.Errorf("cumulative: %s %v", dates, err)
	}
	l = &Layer{Name: "20191228_03_CumulativeFloodWater"}
	dates, err = l.Dates(0, 4)
	if err != nil || !dates.End.Equal(time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("cumulative over two months: %s %v", dates, err)
	}

	l = &Layer{Name: "S2_WaterExtent_X"}
	if _, err := l.Dates(0, 4); err == nil {
		t.Error("expecting an error without date")
	}
}

const floods = `{
"type": "FeatureCollection",
"features": [
{"type": "Feature", "properties": {"Sensor_Date": "2019-12-17", "Notes": "a"}, "geometry": {"type": "Polygon", "coordinates": [[[34.0,-19.0],[34.1,-19.0],[34.1,-18.9],[34.0,-18.9],[34.0,-19.0]]]}},
{"type": "Feature", "properties": {"Sensor_Date": "2019-12-17", "Notes": "b"}, "geometry": {"type": "Polygon", "coordinates": [[[34.2,-19.0],[34.3,-19.0],[34.3,-18.9],[34.2,-18.9],[34.2,-19.0]]]}}
]}`

func TestOGR(t *testing.T) {
	ctx := context.Background()
	container := filepath.Join(t.TempDir(), "S1_20191217_Flood_Area.geojson")
	if err := os.WriteFile(container, []byte(floods), 0644); err != nil {
		t.Fatal(err)
	}
	layers, err := OGR{}.ListLayers(ctx, container)
	if err != nil {
		t.Fatal(err)
	}
	if len(layers) != 1 {
		t.Fatalf("expecting 1 layer, got %v", layers)
	}
	layer, err := OGR{}.ReadLayer(ctx, container, layers[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(layer.Geometries) != 2 || len(layer.Attributes) != 2 {
		t.Fatalf("expecting 2 features, got %d/%d", len(layer.Geometries), len(layer.Attributes))
	}
	if layer.Attributes[1]["Notes"] != "b" {
		t.Errorf("unexpected attributes %v", layer.Attributes[1])
	}
	if _, err := layer.Dates(0, 4); err != nil {
		t.Error(err)
	}
	if _, err := (OGR{}).ReadLayer(ctx, container, "unknown"); err == nil {
		t.Error("expecting an error on an unknown layer")
	}
}
