// Package minio provides a segment cache backed by MinIO or any
// S3-compatible object store reachable through the MinIO client.
//
// The object layout matches the s3 provider:
//
//	<prefix>/headers/<uid>.hdr
//	<prefix>/bodies/<uid>.seg
package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/segcache/codec"
	"github.com/hupe1980/segcache/future"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

// Cache is a MinIO-backed segment cache.
type Cache struct {
	client *minio.Client
	bucket string
	prefix string
	cdc    codec.Codec

	mu       sync.Mutex
	tornDown bool
}

var _ provider.SegmentCache = (*Cache)(nil)

// New creates a MinIO cache. A nil codec defaults to codec.Default.
func New(client *minio.Client, bucket, prefix string, cdc codec.Codec) *Cache {
	if cdc == nil {
		cdc = codec.Default
	}
	return &Cache{client: client, bucket: bucket, prefix: prefix, cdc: cdc}
}

func (c *Cache) headerKey(uid string) string {
	return path.Join(c.prefix, "headers", uid+".hdr")
}

func (c *Cache) bodyKey(uid string) string {
	return path.Join(c.prefix, "bodies", uid+".seg")
}

func (c *Cache) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tornDown {
		return provider.ErrTornDown
	}
	return nil
}

func notFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// Get downloads and decodes the body for header; nil when absent.
func (c *Cache) Get(header *segment.Header) *future.Future[segment.Body] {
	return future.Go(func() (segment.Body, error) {
		if err := c.guard(); err != nil {
			return nil, err
		}
		obj, err := c.client.GetObject(context.Background(), c.bucket,
			c.bodyKey(header.UniqueID()), minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		defer obj.Close()
		raw, err := io.ReadAll(obj)
		if err != nil {
			if notFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return segment.DecodeBody(c.cdc, raw)
	})
}

// Contains stats the body object.
func (c *Cache) Contains(header *segment.Header) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.guard(); err != nil {
			return false, err
		}
		_, err := c.client.StatObject(context.Background(), c.bucket,
			c.bodyKey(header.UniqueID()), minio.StatObjectOptions{})
		if err != nil {
			if notFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
}

// Put uploads the header and body objects.
func (c *Cache) Put(header *segment.Header, body segment.Body) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.guard(); err != nil {
			return false, err
		}
		uid := header.UniqueID()
		hdr, err := segment.EncodeHeader(c.cdc, header)
		if err != nil {
			return false, err
		}
		bod, err := segment.EncodeBody(c.cdc, body)
		if err != nil {
			return false, err
		}
		ctx := context.Background()
		if _, err := c.client.PutObject(ctx, c.bucket, c.bodyKey(uid),
			bytes.NewReader(bod), int64(len(bod)), minio.PutObjectOptions{}); err != nil {
			return false, err
		}
		if _, err := c.client.PutObject(ctx, c.bucket, c.headerKey(uid),
			bytes.NewReader(hdr), int64(len(hdr)), minio.PutObjectOptions{}); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Remove deletes the header and body objects.
func (c *Cache) Remove(header *segment.Header) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.guard(); err != nil {
			return false, err
		}
		uid := header.UniqueID()
		ctx := context.Background()
		found := true
		if _, err := c.client.StatObject(ctx, c.bucket, c.bodyKey(uid),
			minio.StatObjectOptions{}); err != nil {
			if !notFound(err) {
				return false, err
			}
			found = false
		}
		for _, key := range []string{c.bodyKey(uid), c.headerKey(uid)} {
			if err := c.client.RemoveObject(ctx, c.bucket, key,
				minio.RemoveObjectOptions{}); err != nil && !notFound(err) {
				return false, err
			}
		}
		return found, nil
	})
}

// SegmentHeaders lists and decodes every header object.
func (c *Cache) SegmentHeaders() *future.Future[[]*segment.Header] {
	return future.Go(func() ([]*segment.Header, error) {
		if err := c.guard(); err != nil {
			return nil, err
		}
		ctx := context.Background()
		prefix := path.Join(c.prefix, "headers") + "/"
		var headers []*segment.Header
		for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				return nil, obj.Err
			}
			if !strings.HasSuffix(obj.Key, ".hdr") {
				continue
			}
			r, err := c.client.GetObject(ctx, c.bucket, obj.Key, minio.GetObjectOptions{})
			if err != nil {
				return nil, err
			}
			raw, err := io.ReadAll(r)
			_ = r.Close()
			if err != nil {
				if notFound(err) {
					continue // removed between list and read
				}
				return nil, err
			}
			h, err := segment.DecodeHeader(c.cdc, raw)
			if err != nil {
				return nil, err
			}
			headers = append(headers, h)
		}
		return headers, nil
	})
}

// AddListener is accepted but never fires: the store pushes no
// notifications to this process.
func (c *Cache) AddListener(provider.Listener) {}

// RemoveListener is a no-op, matching AddListener.
func (c *Cache) RemoveListener(provider.Listener) {}

// SupportsRichIndex reports true: headers round-trip intact.
func (c *Cache) SupportsRichIndex() bool { return true }

// TearDown marks the cache unusable; bucket contents are left as is.
func (c *Cache) TearDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tornDown = true
}
