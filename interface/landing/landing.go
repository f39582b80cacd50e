// Package landing locates the exports of the remote service in the shared folder where they land.
package landing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/service/log"
	"go.uber.org/zap/zapcore"
)

// Landing is the shared folder of the exports
type Landing interface {
	// Locate returns the location of the export {name}.tif of the folder, or "" if it does not exist,
	// and the locations of its tiles if the remote service split it ({name}-{row}-{col}.tif)
	// Locations can be opened by the raster library.
	// folder is the local raw directory of the export
	Locate(ctx context.Context, folder, name string) (string, []string, error)
	// Fetch makes the file at location available in the local directory and returns its local path
	Fetch(ctx context.Context, location, dir string) (string, error)
}

func splitRegexp(name string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `-\d{10}-\d{10}` + regexp.QuoteMeta(common.Ext) + `$`)
}

// Local is a local directory synchronized with the shared folder by another process
type Local struct {
	// SyncCommand is a shell command run before each lookup (e.g. a folder synchronization)
	SyncCommand string
}

// Locate implements Landing
func (l Local) Locate(ctx context.Context, folder, name string) (string, []string, error) {
	if l.SyncCommand != "" {
		if err := log.Shell(ctx, l.SyncCommand, log.StdoutLevel(zapcore.DebugLevel)); err != nil {
			log.Logger(ctx).Sugar().Warnf("sync command failed: %v", err)
		}
	}
	single := filepath.Join(folder, name+common.Ext)
	if _, err := os.Stat(single); err == nil {
		return single, nil, nil
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("Locate.ReadDir: %w", err)
	}
	re := splitRegexp(name)
	var splits []string
	for _, e := range entries {
		if !e.IsDir() && re.MatchString(e.Name()) {
			splits = append(splits, filepath.Join(folder, e.Name()))
		}
	}
	sort.Strings(splits)
	return "", splits, nil
}

// Fetch implements Landing
func (l Local) Fetch(ctx context.Context, location, dir string) (string, error) {
	if filepath.Clean(filepath.Dir(location)) == filepath.Clean(dir) {
		return location, nil
	}
	dst := filepath.Join(dir, filepath.Base(location))
	data, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("Fetch.ReadFile: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("Fetch.WriteFile: %w", err)
	}
	return dst, nil
}
