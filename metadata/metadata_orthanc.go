package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
	"github.com/gojektech/heimdall/v6/httpclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	orthancCachePrefix = "dicom-annotations:header:"
	orthancLockPrefix  = "dicom-annotations:lock:header:"
)

// OrthancStore reads instance headers from an Orthanc server. Headers are
// cached in Redis when a client is configured.
type OrthancStore struct {
	uri        string
	httpClient *httpclient.Client
	cache      *redis.Client
	locker     *redislock.Client
	ttl        time.Duration
	logger     *zap.Logger
}

type orthancLookup struct {
	ID   string `json:"ID"`
	Path string `json:"Path"`
	Type string `json:"Type"`
}

func NewOrthancStore(uri string, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *OrthancStore {
	timeout := 5000 * time.Millisecond

	httpClient := httpclient.NewClient(
		httpclient.WithHTTPTimeout(timeout),
		httpclient.WithRetryCount(3),
	)

	store := &OrthancStore{
		uri:        strings.TrimRight(uri, "/"),
		httpClient: httpClient,
		cache:      cache,
		ttl:        ttl,
		logger:     logger,
	}
	if cache != nil {
		store.locker = redislock.New(cache)
	}
	return store
}

// FindInstanceByUID maps a SOP Instance UID to the Orthanc instance id.
func (orthanc *OrthancStore) FindInstanceByUID(ctx context.Context, uid string) (string, error) {
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/tools/lookup", orthanc.uri), strings.NewReader(uid))
	if err != nil {
		return "", err
	}
	res, err := orthanc.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, "orthanc lookup")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", errors.New(res.Status)
	}

	found := make([]orthancLookup, 0)
	if err := json.NewDecoder(res.Body).Decode(&found); err != nil {
		return "", errors.Wrap(err, "parse lookup response")
	}

	for _, item := range found {
		if item.Type == "Instance" {
			return item.ID, nil
		}
	}
	return "", fmt.Errorf("instance %s not found", uid)
}

// GetShortTags returns the flat tag map of an Orthanc instance. Sequences and
// empty values are left out.
func (orthanc *OrthancStore) GetShortTags(ctx context.Context, orthancID string) (Header, error) {
	uri := fmt.Sprintf("%s/instances/%s/tags?short", orthanc.uri, orthancID)
	req, err := http.NewRequest("GET", uri, nil)
	if err != nil {
		return nil, err
	}
	res, err := orthanc.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "orthanc tags")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.New(res.Status)
	}

	raw := make(map[string]interface{})
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "parse tags response")
	}

	header := make(Header, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			header[NormalizeTag(k)] = s
		}
	}
	return header, nil
}

func (orthanc *OrthancStore) cached(ctx context.Context, uid string) (Header, bool) {
	if orthanc.cache == nil {
		return nil, false
	}
	b, err := orthanc.cache.Get(ctx, orthancCachePrefix+uid).Bytes()
	if err != nil {
		if err != redis.Nil {
			orthanc.logger.Warn("header cache read failed", zap.String("uid", uid), zap.Error(err))
		}
		return nil, false
	}
	header := make(Header)
	if err := json.Unmarshal(b, &header); err != nil {
		return nil, false
	}
	return header, true
}

func (orthanc *OrthancStore) fetch(ctx context.Context, uid string) (Header, error) {
	orthancID, err := orthanc.FindInstanceByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	header, err := orthanc.GetShortTags(ctx, orthancID)
	if err != nil {
		return nil, err
	}
	if orthanc.cache != nil {
		if err := orthanc.cache.Set(ctx, orthancCachePrefix+uid, header.String(), orthanc.ttl).Err(); err != nil {
			orthanc.logger.Warn("header cache write failed", zap.String("uid", uid), zap.Error(err))
		}
	}
	return header, nil
}

// LoadInstanceHeader returns the header of uid, from the cache when possible.
// Concurrent misses for the same UID share one Orthanc round trip.
func (orthanc *OrthancStore) LoadInstanceHeader(ctx context.Context, uid string) (Header, error) {
	header, err := orthanc.loadInstanceHeader(ctx, uid)
	if err != nil {
		orthanc.logger.Warn("cannot load instance header", zap.String("uid", uid), zap.Error(err))
	}
	return header, err
}

func (orthanc *OrthancStore) loadInstanceHeader(ctx context.Context, uid string) (Header, error) {
	if header, found := orthanc.cached(ctx, uid); found {
		return header, nil
	}
	if orthanc.locker == nil {
		return orthanc.fetch(ctx, uid)
	}

	lock, err := orthanc.locker.Obtain(ctx, orthancLockPrefix+uid, 10*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 100),
	})
	if err != nil {
		orthanc.logger.Debug("header lock not obtained", zap.String("uid", uid), zap.Error(err))
		return orthanc.fetch(ctx, uid)
	}
	defer lock.Release(ctx)

	if header, found := orthanc.cached(ctx, uid); found {
		return header, nil
	}
	return orthanc.fetch(ctx, uid)
}

func (orthanc *OrthancStore) HeaderValue(ctx context.Context, uid, tagID string) (string, bool) {
	header, err := orthanc.LoadInstanceHeader(ctx, uid)
	if err != nil {
		return "", false
	}
	value, found := header[tagID]
	return value, found
}
