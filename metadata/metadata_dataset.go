package metadata

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"dicom-annotations/utils"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

// DatasetStore indexes headers read from DICOM Part 10 files by SOP Instance UID.
// Pixel data is never read.
type DatasetStore struct {
	*MemoryStore

	mu     sync.Mutex
	files  map[string]string
	logger *zap.Logger
}

func NewDatasetStore(logger *zap.Logger) *DatasetStore {
	return &DatasetStore{
		MemoryStore: NewMemoryStore(),
		files:       make(map[string]string),
		logger:      logger,
	}
}

// HeaderFromDataset flattens the top-level elements of ds into a Header.
// Binary values and sequences are skipped.
func HeaderFromDataset(ds dicom.Dataset) Header {
	header := make(Header, len(ds.Elements))
	for _, elem := range ds.Elements {
		if elem == nil || elem.Value == nil {
			continue
		}
		value, ok := elementString(elem)
		if !ok {
			continue
		}
		header[FormatTag(elem.Tag.Group, elem.Tag.Element)] = value
	}
	return header
}

func elementString(elem *dicom.Element) (string, bool) {
	switch elem.Value.ValueType() {
	case dicom.Strings:
		values, _ := elem.Value.GetValue().([]string)
		trimmed := make([]string, 0, len(values))
		for _, v := range values {
			trimmed = append(trimmed, strings.TrimRight(v, " \x00"))
		}
		return strings.Join(trimmed, "\\"), true
	case dicom.Ints:
		values, _ := elem.Value.GetValue().([]int)
		items := make([]string, 0, len(values))
		for _, v := range values {
			items = append(items, strconv.Itoa(v))
		}
		return strings.Join(items, "\\"), true
	case dicom.Floats:
		values, _ := elem.Value.GetValue().([]float64)
		items := make([]string, 0, len(values))
		for _, v := range values {
			items = append(items, strconv.FormatFloat(v, 'f', -1, 64))
		}
		return strings.Join(items, "\\"), true
	}
	return "", false
}

func (store *DatasetStore) index(source string, ds dicom.Dataset) (string, error) {
	header := HeaderFromDataset(ds)
	uid := header[TagSOPInstanceUID]
	if uid == "" {
		return "", fmt.Errorf("%s has no %s", source, tag.SOPInstanceUID)
	}
	store.Put(uid, header)

	store.mu.Lock()
	store.files[source] = uid
	store.mu.Unlock()
	return uid, nil
}

// LoadFile reads one file and returns the SOP Instance UID it was indexed under.
func (store *DatasetStore) LoadFile(path string) (string, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", path)
	}
	return store.index(path, ds)
}

// Forget drops the header that was loaded from source.
func (store *DatasetStore) Forget(source string) {
	store.mu.Lock()
	uid, found := store.files[source]
	delete(store.files, source)
	store.mu.Unlock()
	if found {
		store.Delete(uid)
	}
}

// LoadDir indexes every readable DICOM file below dir. Files that fail to
// parse are logged and skipped.
func (store *DatasetStore) LoadDir(dir string) (int, error) {
	start := time.Now()
	count, failed := 0, 0
	err := utils.WalkFiles(dir, func(path string, info os.FileInfo) error {
		if _, err := store.LoadFile(path); err != nil {
			failed++
			store.logger.Debug("skip file", zap.String("path", path), zap.Error(err))
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, errors.Wrapf(err, "walk %s", dir)
	}
	store.logger.Info(fmt.Sprintf("Indexed %s headers from %s (%s skipped) in %s",
		humanize.Comma(int64(count)), dir, humanize.Comma(int64(failed)), time.Since(start).Truncate(time.Millisecond)))
	return count, nil
}

// LoadReader indexes a header read from r, source names it for Forget.
func (store *DatasetStore) LoadReader(source string, r io.Reader, size int64) (string, error) {
	ds, err := dicom.Parse(r, size, nil, dicom.SkipPixelData())
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", source)
	}
	return store.index(source, ds)
}

// LoadBucket indexes every object below prefix in a MinIO bucket.
func (store *DatasetStore) LoadBucket(ctx context.Context, client *minio.Client, bucket, prefix string) (int, error) {
	count := 0
	var size int64
	for info := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return count, errors.Wrapf(info.Err, "list %s/%s", bucket, prefix)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		object, err := client.GetObject(ctx, bucket, info.Key, minio.GetObjectOptions{})
		if err != nil {
			store.logger.Warn("cannot open object", zap.String("key", info.Key), zap.Error(err))
			continue
		}
		_, err = store.LoadReader(bucket+"/"+info.Key, object, info.Size)
		object.Close()
		if err != nil {
			store.logger.Debug("skip object", zap.String("key", info.Key), zap.Error(err))
			continue
		}
		count++
		size += info.Size
	}
	store.logger.Info(fmt.Sprintf("Indexed %s headers from bucket %s (%s scanned)",
		humanize.Comma(int64(count)), bucket, humanize.Bytes(uint64(size))))
	return count, nil
}

// Watch keeps the index in sync with dir until ctx is done. onChange is called
// with the UID of every header that was added or replaced.
func (store *DatasetStore) Watch(ctx context.Context, dir string, onChange func(uid string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			store.handleEvent(watcher, event, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			store.logger.Warn("watch error", zap.String("dir", dir), zap.Error(err))
		}
	}
}

func (store *DatasetStore) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, onChange func(uid string)) {
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		store.Forget(event.Name)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		if utils.IsDir(event.Name) {
			if event.Has(fsnotify.Create) {
				if err := watcher.Add(event.Name); err != nil {
					store.logger.Warn("cannot watch directory", zap.String("dir", event.Name), zap.Error(err))
				}
			}
			return
		}
		uid, err := store.LoadFile(event.Name)
		if err != nil {
			store.logger.Debug("skip file", zap.String("path", event.Name), zap.Error(err))
			return
		}
		if onChange != nil {
			onChange(uid)
		}
	}
}
