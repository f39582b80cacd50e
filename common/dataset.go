package common

//go:generate go run github.com/dmarkham/enumer -json -text -type Dataset -trimprefix Dataset -transform snake

// Dataset is one of the supported flood training sources
type Dataset int

const (
	DatasetWorldFloods  Dataset = iota // A: WorldFloods v1, one GeoTIFF ground truth per event
	DatasetSen1Floods11                // B: Sen1Floods11 hand-labeled chips
	DatasetUSGS                        // C: USGS flood training rasters (FGDC metadata)
	DatasetUNOSAT                      // D: UNOSAT flood geodatabases (vector ground truth)
)

// Tiled returns true if the events of the dataset are split along the auxiliary tile grid
func (d Dataset) Tiled() bool {
	return d == DatasetUNOSAT
}

// Downloaded returns true if the raw optical imagery of the dataset comes from the remote service
// (and is therefore already in a projected CRS).
func (d Dataset) Downloaded() bool {
	return d == DatasetUSGS || d == DatasetUNOSAT
}
