// Package dynamodb provides a segment cache backed by a DynamoDB table.
//
// One item per segment, keyed by the header's unique ID:
//
//	uid    (S)  partition key
//	header (S)  codec-encoded header
//	body   (B)  codec-encoded body
//
// The table keeps full headers, so the cache supports a rich index and
// SegmentHeaders is a projected scan. Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name segcache \
//	  --attribute-definitions AttributeName=uid,AttributeType=S \
//	  --key-schema AttributeName=uid,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/segcache/codec"
	"github.com/hupe1980/segcache/future"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

// Client is the subset of the DynamoDB API the cache uses. *dynamodb.Client
// satisfies it; unit tests inject a fake.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Cache is a DynamoDB-backed segment cache.
type Cache struct {
	client    Client
	tableName string
	cdc       codec.Codec

	mu       sync.Mutex
	tornDown bool
}

var _ provider.SegmentCache = (*Cache)(nil)

// New creates a DynamoDB cache using the default AWS configuration chain.
func New(ctx context.Context, tableName string, cdc codec.Codec) (*Cache, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewWithClient(dynamodb.NewFromConfig(cfg), tableName, cdc), nil
}

// NewWithClient creates a DynamoDB cache with an explicit client. A nil
// codec defaults to codec.Default.
func NewWithClient(client Client, tableName string, cdc codec.Codec) *Cache {
	if cdc == nil {
		cdc = codec.Default
	}
	return &Cache{client: client, tableName: tableName, cdc: cdc}
}

func (c *Cache) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tornDown {
		return provider.ErrTornDown
	}
	return nil
}

func (c *Cache) key(uid string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"uid": &types.AttributeValueMemberS{Value: uid},
	}
}

// Get fetches and decodes the body for header; nil when absent.
func (c *Cache) Get(header *segment.Header) *future.Future[segment.Body] {
	return future.Go(func() (segment.Body, error) {
		if err := c.guard(); err != nil {
			return nil, err
		}
		out, err := c.client.GetItem(context.Background(), &dynamodb.GetItemInput{
			TableName:            aws.String(c.tableName),
			Key:                  c.key(header.UniqueID()),
			ProjectionExpression: aws.String("body"),
		})
		if err != nil {
			return nil, err
		}
		attr, ok := out.Item["body"].(*types.AttributeValueMemberB)
		if !ok {
			return nil, nil
		}
		return segment.DecodeBody(c.cdc, attr.Value)
	})
}

// Contains checks for the item.
func (c *Cache) Contains(header *segment.Header) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.guard(); err != nil {
			return false, err
		}
		out, err := c.client.GetItem(context.Background(), &dynamodb.GetItemInput{
			TableName:            aws.String(c.tableName),
			Key:                  c.key(header.UniqueID()),
			ProjectionExpression: aws.String("uid"),
		})
		if err != nil {
			return false, err
		}
		return len(out.Item) > 0, nil
	})
}

// Put stores the header and body as one item.
func (c *Cache) Put(header *segment.Header, body segment.Body) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.guard(); err != nil {
			return false, err
		}
		hdr, err := segment.EncodeHeader(c.cdc, header)
		if err != nil {
			return false, err
		}
		bod, err := segment.EncodeBody(c.cdc, body)
		if err != nil {
			return false, err
		}
		_, err = c.client.PutItem(context.Background(), &dynamodb.PutItemInput{
			TableName: aws.String(c.tableName),
			Item: map[string]types.AttributeValue{
				"uid":    &types.AttributeValueMemberS{Value: header.UniqueID()},
				"header": &types.AttributeValueMemberS{Value: string(hdr)},
				"body":   &types.AttributeValueMemberB{Value: bod},
			},
		})
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// Remove deletes the item, reporting whether it existed.
func (c *Cache) Remove(header *segment.Header) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.guard(); err != nil {
			return false, err
		}
		out, err := c.client.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
			TableName:    aws.String(c.tableName),
			Key:          c.key(header.UniqueID()),
			ReturnValues: types.ReturnValueAllOld,
		})
		if err != nil {
			return false, err
		}
		return len(out.Attributes) > 0, nil
	})
}

// SegmentHeaders scans the table, projecting only the header attribute.
func (c *Cache) SegmentHeaders() *future.Future[[]*segment.Header] {
	return future.Go(func() ([]*segment.Header, error) {
		if err := c.guard(); err != nil {
			return nil, err
		}
		ctx := context.Background()
		var headers []*segment.Header
		var start map[string]types.AttributeValue
		for {
			out, err := c.client.Scan(ctx, &dynamodb.ScanInput{
				TableName:            aws.String(c.tableName),
				ProjectionExpression: aws.String("header"),
				ExclusiveStartKey:    start,
			})
			if err != nil {
				return nil, err
			}
			for _, item := range out.Items {
				attr, ok := item["header"].(*types.AttributeValueMemberS)
				if !ok {
					continue
				}
				h, err := segment.DecodeHeader(c.cdc, []byte(attr.Value))
				if err != nil {
					return nil, err
				}
				headers = append(headers, h)
			}
			if out.LastEvaluatedKey == nil {
				return headers, nil
			}
			start = out.LastEvaluatedKey
		}
	})
}

// AddListener is accepted but never fires: DynamoDB pushes no
// notifications to this process.
func (c *Cache) AddListener(provider.Listener) {}

// RemoveListener is a no-op, matching AddListener.
func (c *Cache) RemoveListener(provider.Listener) {}

// SupportsRichIndex reports true: full headers are stored per item.
func (c *Cache) SupportsRichIndex() bool { return true }

// TearDown marks the cache unusable. The table belongs to the deployment
// and is left untouched.
func (c *Cache) TearDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tornDown = true
}
