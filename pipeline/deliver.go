package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/floodsnet/floodprep/common"
	db "github.com/floodsnet/floodprep/interface/database"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/log"
)

// KeysFile is the dictionary of the hashed keys written to the output directory
const KeysFile = "keys.json"

// Notification is the message published for each processed event
type Notification struct {
	Run     string   `json:"run"`
	Dataset string   `json:"dataset"`
	Key     string   `json:"key"`
	Tile    string   `json:"tile,omitempty"`
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

func (p *Pipeline) notify(ctx context.Context, e db.Event) error {
	b, err := json.Marshal(Notification{
		Run:     e.RunID,
		Dataset: e.Dataset.String(),
		Key:     e.Key,
		Tile:    e.Tile,
		Status:  e.Status.String(),
		Message: e.Message,
		Outputs: e.Outputs,
	})
	if err != nil {
		return fmt.Errorf("notify.Marshal: %w", err)
	}
	if err := p.notifier.Publish(ctx, b); err != nil {
		return fmt.Errorf("notify.Publish: %w", err)
	}
	return nil
}

// bundleName returns the name of the archive of an event: {dataset}_{key}[_{tile}].zip
func bundleName(e common.Event) string {
	return e.Dataset.String() + "_" + e.ID() + ".zip"
}

// deliver bundles and publishes the outputs of the event, according to the configuration.
// It returns the outputs, with the bundle if any.
func (p *Pipeline) deliver(ctx context.Context, e common.Event, st common.EventStatus, outputs []string) ([]string, error) {
	if p.Bundle && len(outputs) > 0 {
		bundle := p.registry.OutputPath(bundleName(e))
		if st == common.EventDone || !p.exists(bundle) {
			if err := service.Bundle(outputs, bundle); err != nil {
				return outputs, fmt.Errorf("deliver.%w", err)
			}
			log.Logger(ctx).Sugar().Debugf("bundled in %s", bundle)
		}
		outputs = append(outputs, bundle)
	}
	if p.publisher == nil {
		return outputs, nil
	}
	published := make([]string, 0, len(outputs))
	for _, f := range outputs {
		uri, err := p.publisher.Upload(ctx, f, filepath.Base(f))
		if err != nil {
			return outputs, fmt.Errorf("deliver.%w", err)
		}
		published = append(published, uri)
	}
	return published, nil
}

// writeKeys writes the dictionary of the hashed keys met during the run in the output directory,
// merged with the existing one, and renames the outputs if configured to.
func (p *Pipeline) writeKeys(ctx context.Context) error {
	if len(p.keys) == 0 {
		return nil
	}
	dir := p.registry.Config().OutputDir
	keys := map[string]string{}
	if b, err := os.ReadFile(filepath.Join(dir, KeysFile)); err == nil {
		if err := json.Unmarshal(b, &keys); err != nil {
			log.Logger(ctx).Sugar().Warnf("%s is corrupted, overwriting it: %v", KeysFile, err)
			keys = map[string]string{}
		}
	}
	for k, v := range p.keys {
		keys[k] = v
	}
	if err := service.ToJSON(keys, dir, KeysFile); err != nil {
		return fmt.Errorf("writeKeys.%w", err)
	}
	if !p.RenameKeys {
		return nil
	}
	renamed, err := RenameKeys(dir, common.DatasetUNOSAT, keys)
	if err != nil {
		return fmt.Errorf("writeKeys.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%d output(s) renamed", renamed)
	return nil
}

// RenameKeys renames the outputs of the dataset named after a hashed key ({dataset}_{key}_...) with the name
// the key was derived from. It returns the number of renamed files.
// Renamed outputs are no longer recognized by the following runs.
func RenameKeys(dir string, d common.Dataset, keys map[string]string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("RenameKeys.ReadDir: %w", err)
	}
	hashes := make([]string, 0, len(keys))
	for k := range keys {
		hashes = append(hashes, k)
	}
	sort.Strings(hashes)

	n := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == KeysFile {
			continue
		}
		for _, hash := range hashes {
			prefix := d.String() + "_" + hash + "_"
			var renamed string
			switch {
			case strings.HasPrefix(name, prefix):
				renamed = d.String() + "_" + keys[hash] + "_" + strings.TrimPrefix(name, prefix)
			case strings.HasPrefix(name, hash+"_"):
				renamed = keys[hash] + "_" + strings.TrimPrefix(name, hash+"_")
			default:
				continue
			}
			if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, renamed)); err != nil {
				return n, fmt.Errorf("RenameKeys.Rename: %w", err)
			}
			n++
			break
		}
	}
	return n, nil
}
