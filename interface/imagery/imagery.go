// Package imagery defines the remote imagery service: it searches image collections and exports
// images (or server-side compositions) as GeoTIFFs into a shared folder.
package imagery

import (
	"context"
	"time"

	"github.com/floodsnet/floodprep/classification"
	"github.com/floodsnet/floodprep/common"
)

// Collection is the identifier of a remote image collection
type Collection string

// Collections used by the pipeline
const (
	CollectionOptical        Collection = "COPERNICUS/S2_HARMONIZED"
	CollectionRadar          Collection = "COPERNICUS/S1_GRD"
	CollectionMonthlyHistory Collection = "JRC/GSW1_4/MonthlyHistory"
	CollectionYearlyHistory  Collection = "JRC/GSW1_4/YearlyHistory"
)

// Bands exported per collection. The order of the optical bands is the order of the downloaded
// datasets (green is band 3, near infrared is band 8).
var (
	OpticalBands = []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B8A", "B9", "B10", "B11", "B12"}
	RadarBands   = []string{"VV", "VH"}
)

// Scale of the exports (meters)
const Scale = 10

// CollectionOf returns the collection of the kind
func CollectionOf(kind common.AssetKind) Collection {
	switch kind {
	case common.KindS2:
		return CollectionOptical
	case common.KindS1:
		return CollectionRadar
	}
	return CollectionMonthlyHistory
}

// Image is an image of a collection
type Image struct {
	Collection Collection
	// Index is the identifier of the image in its collection, used in the raw names
	Index string
	Start time.Time
	End   time.Time
	// Footprint is the extent of the image
	Footprint common.BBox
}

// ExportRequest describes an export job
type ExportRequest struct {
	// Name is the description of the job (≤100 characters) and the name of the output file (without extension)
	Name string
	Kind common.AssetKind
	// Folder is the folder of the shared storage where the output lands
	Folder string
	Region common.BBox
	// Image to export (optical, radar)
	Image *Image
	// Window of the water history composition (water history)
	Window *classification.Window
}

// Service is the remote imagery service
type Service interface {
	// Search returns the images of the collection intersecting the region, acquired within the dates
	Search(ctx context.Context, collection Collection, region common.BBox, dates common.DateRange) ([]Image, error)
	// Export submits an export job and returns its handle
	Export(ctx context.Context, req ExportRequest) (string, error)
	// Status returns the state of the job and a message if it failed
	Status(ctx context.Context, handle string) (common.TaskState, string, error)
}
