package common

//go:generate go run github.com/dmarkham/enumer -json -text -type AssetKind -trimprefix Kind

// AssetKind is the kind of raster layer of an event. Its string is the KIND suffix of file names.
type AssetKind int

const (
	KindGT   AssetKind = iota // Ground truth flood mask
	KindS2                    // Optical (Sentinel-2)
	KindS1                    // Radar (Sentinel-1)
	KindJRC                   // Water history (JRC global surface water)
	KindNDWI                  // Spectral water index
)

// Acquirable returns true if the remote service can produce this kind
func (k AssetKind) Acquirable() bool {
	return k == KindS2 || k == KindS1 || k == KindJRC
}

// Categorical returns true if the pixels of the kind are class codes (nearest resampling)
func (k AssetKind) Categorical() bool {
	return k == KindGT || k == KindJRC
}
