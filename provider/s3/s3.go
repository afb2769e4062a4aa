// Package s3 provides a segment cache backed by Amazon S3 or any
// S3-compatible object store.
//
// Headers and bodies are stored as separate objects so that scanning the
// cache only reads header objects:
//
//	<prefix>/headers/<uid>.hdr
//	<prefix>/bodies/<uid>.seg
//
// S3 cannot push change notifications to this process, so listeners are
// accepted but never invoked; cross-node visibility relies on scans.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/segcache/codec"
	"github.com/hupe1980/segcache/future"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

// Client is the subset of the S3 API the cache uses. *s3.Client satisfies
// it; unit tests inject a fake.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Cache is an S3-backed segment cache.
type Cache struct {
	client Client
	bucket string
	prefix string
	cdc    codec.Codec

	downloader *manager.Downloader

	mu       sync.Mutex
	tornDown bool
}

var _ provider.SegmentCache = (*Cache)(nil)

// New creates an S3 cache using the default AWS configuration chain.
func New(ctx context.Context, bucket, prefix string, cdc codec.Codec) (*Cache, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, prefix, cdc), nil
}

// NewWithClient creates an S3 cache with an explicit client. A nil codec
// defaults to codec.Default.
func NewWithClient(client Client, bucket, prefix string, cdc codec.Codec) *Cache {
	if cdc == nil {
		cdc = codec.Default
	}
	return &Cache{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		cdc:        cdc,
		downloader: manager.NewDownloader(client),
	}
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
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

// Get downloads and decodes the body for header; nil when absent.
func (c *Cache) Get(header *segment.Header) *future.Future[segment.Body] {
	return future.Go(func() (segment.Body, error) {
		if err := c.guard(); err != nil {
			return nil, err
		}
		buf := manager.NewWriteAtBuffer(nil)
		_, err := c.downloader.Download(context.Background(), buf, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.bodyKey(header.UniqueID())),
		})
		if err != nil {
			if notFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return segment.DecodeBody(c.cdc, buf.Bytes())
	})
}

// Contains checks for the body object.
func (c *Cache) Contains(header *segment.Header) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.guard(); err != nil {
			return false, err
		}
		_, err := c.client.HeadObject(context.Background(), &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.bodyKey(header.UniqueID())),
		})
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
		if _, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.bodyKey(uid)),
			Body:   bytes.NewReader(bod),
		}); err != nil {
			return false, err
		}
		if _, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.headerKey(uid)),
			Body:   bytes.NewReader(hdr),
		}); err != nil {
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
		if _, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.bodyKey(uid)),
		}); err != nil {
			if !notFound(err) {
				return false, err
			}
			found = false
		}
		for _, key := range []string{c.bodyKey(uid), c.headerKey(uid)} {
			if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    aws.String(key),
			}); err != nil {
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
		paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(c.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, obj := range page.Contents {
				out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
					Bucket: aws.String(c.bucket),
					Key:    obj.Key,
				})
				if err != nil {
					if notFound(err) {
						continue // removed between list and read
					}
					return nil, err
				}
				raw, err := io.ReadAll(out.Body)
				_ = out.Body.Close()
				if err != nil {
					return nil, err
				}
				h, err := segment.DecodeHeader(c.cdc, raw)
				if err != nil {
					return nil, err
				}
				headers = append(headers, h)
			}
		}
		return headers, nil
	})
}

// AddListener is accepted but never fires: S3 pushes no notifications.
func (c *Cache) AddListener(provider.Listener) {}

// RemoveListener is a no-op, matching AddListener.
func (c *Cache) RemoveListener(provider.Listener) {}

// SupportsRichIndex reports true: headers round-trip intact.
func (c *Cache) SupportsRichIndex() bool { return true }

// TearDown marks the cache unusable. Objects in the bucket are left as is;
// they belong to the deployment, not this process.
func (c *Cache) TearDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tornDown = true
}
