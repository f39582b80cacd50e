package landing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLocalLocate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := Local{}

	single, splits, err := l.Locate(ctx, filepath.Join(dir, "missing"), "name")
	if err != nil || single != "" || len(splits) != 0 {
		t.Errorf("missing folder: %s %v %v", single, splits, err)
	}

	for _, f := range []string{"a_S2.tif", "b_S2-0000000000-0000000000.tif", "b_S2-0000000000-0000023296.tif", "b_S2-0000000000.tif", "bb_S2-0000000000-0000000000.tif"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	single, splits, _ = l.Locate(ctx, dir, "a_S2")
	if single != filepath.Join(dir, "a_S2.tif") || len(splits) != 0 {
		t.Errorf("a_S2: %s %v", single, splits)
	}
	single, splits, _ = l.Locate(ctx, dir, "b_S2")
	expected := []string{filepath.Join(dir, "b_S2-0000000000-0000000000.tif"), filepath.Join(dir, "b_S2-0000000000-0000023296.tif")}
	if single != "" {
		t.Errorf("b_S2 is split: %s", single)
	}
	if diff := cmp.Diff(expected, splits); diff != "" {
		t.Error(diff)
	}
}

func TestLocalSyncCommand(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := Local{SyncCommand: "touch " + filepath.Join(dir, "synced_JRC.tif")}
	single, _, err := l.Locate(ctx, dir, "synced_JRC")
	if err != nil || single == "" {
		t.Errorf("the sync command must run before the lookup: %s %v", single, err)
	}
}

func TestLocalFetch(t *testing.T) {
	ctx := context.Background()
	src, dst := t.TempDir(), t.TempDir()
	f := filepath.Join(src, "x.tif")
	os.WriteFile(f, []byte("data"), 0644)

	if p, _ := (Local{}).Fetch(ctx, f, src); p != f {
		t.Errorf("fetching in the same folder must be a no-op: %s", p)
	}
	p, err := Local{}.Fetch(ctx, f, dst)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(p); string(b) != "data" {
		t.Errorf("unexpected content %s", b)
	}
}
