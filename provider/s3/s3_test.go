package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcache/bitkey"
	"github.com/hupe1980/segcache/codec"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

// fakeClient is an in-memory stand-in for the S3 API.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string][]byte)}
}

func (f *fakeClient) GetObject(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	n := int64(len(data))
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(n),
		ContentRange:  aws.String(fmt.Sprintf("bytes 0-%d/%d", n-1, n)),
	}, nil
}

func (f *fakeClient) PutObject(_ context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*params.Key] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeClient) HeadObject(_ context.Context, params *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeClient) DeleteObject(_ context.Context, params *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *params.Key)
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(_ context.Context, params *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var contents []types.Object
	for key := range f.objects {
		if params.Prefix == nil || strings.HasPrefix(key, *params.Prefix) {
			contents = append(contents, types.Object{Key: aws.String(key)})
		}
	}
	return &awss3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(false),
	}, nil
}

func testHeader(state string) *segment.Header {
	return segment.NewHeader(
		segment.Provenance{
			SchemaName:    "FoodMart",
			CubeName:      "Sales",
			MeasureName:   "Unit Sales",
			FactTableName: "sales_fact",
		},
		[]segment.Column{segment.NewColumnOf("state", segment.StringValue(state))},
		nil,
		bitkey.Of(0),
		nil,
	)
}

func testBody() segment.Body {
	return segment.NewDenseIntBody([]int64{7}, nil, []segment.AxisValues{
		{Values: segment.NewValueSet(segment.StringValue("CA"))},
	})
}

const budget = time.Second

func TestPutGetContainsRemove(t *testing.T) {
	c := NewWithClient(newFakeClient(), "bucket", "olap", codec.NewZstd(nil))
	h := testHeader("CA")

	body, err := c.Get(h).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.Nil(t, body)

	ok, err := c.Contains(h).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Put(h, testBody()).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.True(t, ok)

	body, err = c.Get(h).AwaitTimeout(budget)
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.True(t, segment.BodiesEqual(testBody(), body))

	ok, err = c.Contains(h).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Remove(h).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Remove(h).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSegmentHeadersScan(t *testing.T) {
	c := NewWithClient(newFakeClient(), "bucket", "olap", nil)
	want := map[string]bool{}
	for _, s := range []string{"CA", "OR", "WA"} {
		h := testHeader(s)
		want[h.UniqueID()] = true
		_, err := c.Put(h, testBody()).AwaitTimeout(budget)
		require.NoError(t, err)
	}

	headers, err := c.SegmentHeaders().AwaitTimeout(budget)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	for _, h := range headers {
		assert.True(t, want[h.UniqueID()])
	}
}

func TestRichIndexAndTearDown(t *testing.T) {
	c := NewWithClient(newFakeClient(), "bucket", "", nil)
	assert.True(t, c.SupportsRichIndex())

	c.TearDown()
	_, err := c.Get(testHeader("CA")).AwaitTimeout(budget)
	assert.ErrorIs(t, err, provider.ErrTornDown)
}
