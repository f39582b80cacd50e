package landing

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube/interface/storage/gcs"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/service"
	"google.golang.org/api/iterator"
)

// Bucket is a GCS bucket. Locations are gs:// URIs (GDAL reads them through the osio handler)
type Bucket struct {
	client *storage.Client
	bucket string
	prefix string
	store  service.Storage
}

// NewBucket creates a landing on gs://bucket/prefix. The exports of a folder are in gs://bucket/prefix/{base(folder)}
func NewBucket(ctx context.Context, uri string) (*Bucket, error) {
	bucket, prefix, err := gcs.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("NewBucket.Parse: %w", err)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewBucket.NewClient: %w", err)
	}
	store, err := service.NewStorageStrategy(ctx, "gs://"+bucket)
	if err != nil {
		return nil, fmt.Errorf("NewBucket.%w", err)
	}
	return &Bucket{client: client, bucket: bucket, prefix: prefix, store: store}, nil
}

// Bucket returns the name of the bucket and the prefix of the exports
func (b *Bucket) Bucket() (string, string) {
	return b.bucket, b.prefix
}

// Locate implements Landing
func (b *Bucket) Locate(ctx context.Context, folder, name string) (string, []string, error) {
	objPrefix := path.Join(b.prefix, filepath.Base(folder), name)
	single := objPrefix + common.Ext
	re := splitRegexp(name)

	var found bool
	var splits []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: objPrefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("Locate.list[%s/%s*]: %w", b.bucket, objPrefix, err)
		}
		switch {
		case attrs.Name == single:
			found = true
		case re.MatchString(path.Base(attrs.Name)) && path.Dir(attrs.Name) == path.Dir(objPrefix):
			splits = append(splits, b.uri(attrs.Name))
		}
	}
	if found {
		return b.uri(single), nil, nil
	}
	sort.Strings(splits)
	return "", splits, nil
}

// Fetch implements Landing
func (b *Bucket) Fetch(ctx context.Context, location, dir string) (string, error) {
	bucket, object, err := gcs.Parse(location)
	if err != nil {
		return "", fmt.Errorf("Fetch.Parse: %w", err)
	}
	if bucket != b.bucket {
		return "", fmt.Errorf("Fetch: %s is not in bucket %s", location, b.bucket)
	}
	dst := filepath.Join(dir, path.Base(object))
	if err := b.store.Download(ctx, object, dst); err != nil {
		return "", fmt.Errorf("Fetch.%w", err)
	}
	return dst, nil
}

func (b *Bucket) uri(object string) string {
	return "gs://" + b.bucket + "/" + object
}
