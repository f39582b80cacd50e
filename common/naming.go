package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Ext is the extension of every raster file
const Ext = ".tif"

// MaxJobNameLength is the maximum length of a job description accepted by the remote service
const MaxJobNameLength = 100

// HashKey returns a short deterministic digest of s (first 8 hex chars of its sha256)
func HashKey(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:8]
}

// Stem returns the base name of the file without its extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func join(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "_")
}

// CanonicalName returns the name of a final output: {dataset}_{key}[_{extras}]_{KIND}.tif
// extras are the optional disambiguators (pass sub-key, tile), empty values are ignored.
func CanonicalName(dataset Dataset, key string, kind AssetKind, extras ...string) string {
	parts := append([]string{dataset.String(), key}, extras...)
	return join(append(parts, kind.String())...) + Ext
}

// ResampledName returns the name of an intermediate resampled layer: {key}_resamp_{KIND}.tif
func ResampledName(key string, kind AssetKind) string {
	return key + "_resamp_" + kind.String() + Ext
}

// IndexName returns the name of the spectral index raster: {key}_{date}[_{tile}]_NDWI.tif
func IndexName(key string, date time.Time, tile string) string {
	return join(key, date.Format("20060102"), tile, KindNDWI.String()) + Ext
}

// RawName returns the name (without extension) of a raw optical or radar export: {id}_{imageIndex}_{KIND}
func RawName(id, imageIndex string, kind AssetKind) string {
	return join(id, imageIndex, kind.String())
}

// WaterHistoryName returns the name (without extension) of a water history export: {id}_{YYYYMM}_Seasonal_JRC
// where YYYYMM is the flood year and the first month of its season.
func WaterHistoryName(id string, floodYear, season int, monthly bool) string {
	period := "Seasonal"
	if monthly {
		period = "Monthly"
	}
	return join(id, fmt.Sprintf("%d%02d", floodYear, season), period, KindJRC.String())
}

var splitRegexp = regexp.MustCompile(`^(.+)-\d{10}-\d{10}$`)

// SplitBase returns the name the file would have had if the remote service had not split it
// into tiles ({name}-{row}-{col}.tif)
func SplitBase(file string) (string, bool) {
	m := splitRegexp.FindStringSubmatch(Stem(file))
	if m == nil {
		return "", false
	}
	return m[1], true
}

var (
	opticalRegexp = regexp.MustCompile(`^(.+)_((\d{8}T\d{6})_(\d{8}T\d{6})_T(\w{5}))_S2$`)
	radarRegexp   = regexp.MustCompile(`^(.+)_((S1[A-D])_(\w{2})_(\w{4})_(\w{4})_(\d{8}T\d{6})_(\d{8}T\d{6})_(\d{6})_([0-9A-F]{6})_([0-9A-F]{4}))_S1$`)
	historyRegexp = regexp.MustCompile(`^(.+)_(\d{4})(\d{2})_(Seasonal|Monthly)_JRC$`)
)

// Info parses the name of a raw export (optical, radar or water history) and returns its fields:
// KIND, ID, INDEX, SUBKEY, DATE (YYYYMMDD), TILE (optical only), YEAR/MONTH (water history only)
func Info(name string) (map[string]string, error) {
	name = Stem(name)
	if m := opticalRegexp.FindStringSubmatch(name); m != nil {
		return map[string]string{
			"KIND":   KindS2.String(),
			"ID":     m[1],
			"INDEX":  m[2],
			"SUBKEY": m[3] + "_" + m[4],
			"DATE":   m[3][0:8],
			"TILE":   m[5],
		}, nil
	}
	if m := radarRegexp.FindStringSubmatch(name); m != nil {
		return map[string]string{
			"KIND":     KindS1.String(),
			"ID":       m[1],
			"INDEX":    m[2],
			"MISSION":  m[3],
			"MODE":     m[4],
			"SUBKEY":   strings.Join(m[8:12], "_"),
			"DATE":     m[7][0:8],
			"ORBIT":    m[9],
			"DATATAKE": m[10],
		}, nil
	}
	if m := historyRegexp.FindStringSubmatch(name); m != nil {
		return map[string]string{
			"KIND":   KindJRC.String(),
			"ID":     m[1],
			"YEAR":   m[2],
			"MONTH":  m[3],
			"PERIOD": m[4],
			"SUBKEY": m[2] + m[3],
		}, nil
	}
	return nil, fmt.Errorf("Info: unrecognized raw asset name: %s", name)
}

// TruncateJobName bounds a job name to MaxJobNameLength characters
func TruncateJobName(name string) string {
	if len(name) <= MaxJobNameLength {
		return name
	}
	return name[:MaxJobNameLength]
}
