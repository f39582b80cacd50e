package service

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube/interface/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/mholt/archiver"
)

// ErrFileNotFound is an error returned by Download
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	var epath *os.PathError
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// Storage is a service to store and retrieve files from a storage
type Storage interface {
	// Upload persists the local file into the storage under the given name and returns its uri
	Upload(ctx context.Context, localPath, name string) (string, error)
	// Download copies the file name of the storage to localPath
	// Raise ErrFileNotFound
	Download(ctx context.Context, name, localPath string) error
	// URI returns the uri of the file name in the storage
	URI(name string) string
}

// StorageStrategy implements Storage using geocube.Strategy
type StorageStrategy struct {
	storage storage.Strategy
	uri     uri.DefaultUri
}

// NewStorageStrategy creates a new StorageStrategy (local directory, gs://bucket/prefix...)
func NewStorageStrategy(ctx context.Context, storageURI string) (*StorageStrategy, error) {
	uri, err := uri.ParseUri(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}

	storageClient, err := uri.NewStorageStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy: %w", err)
	}

	return &StorageStrategy{storage: storageClient, uri: uri}, nil
}

// Upload implements Storage
func (ss *StorageStrategy) Upload(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("Upload.Open: %w", err)
	}
	defer f.Close()

	dst := ss.URI(name)
	if err := ss.storage.UploadFile(ctx, dst, f); err != nil {
		return "", fmt.Errorf("Upload.UploadFile to %s: %w", dst, err)
	}
	return dst, nil
}

// Download implements Storage
func (ss *StorageStrategy) Download(ctx context.Context, name, localPath string) error {
	src := ss.URI(name)
	if err := ss.storage.DownloadToFile(ctx, src, localPath); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{src}
		}
		return fmt.Errorf("Download.DownloadToFile from %s: %w", src, err)
	}
	return nil
}

// URI implements Storage
func (ss *StorageStrategy) URI(name string) string {
	uri := ss.uri.String()
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri + path.Clean(name)
}

// Bundle zips the files (flat) into dst, replacing any existing archive
func Bundle(files []string, dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("Bundle.Remove: %w", err)
	}
	zipper := archiver.NewZip()
	zipper.CompressionLevel = flate.BestSpeed
	if err := zipper.Archive(files, dst); err != nil {
		return fmt.Errorf("Bundle.Archive: %w", err)
	}
	return nil
}
