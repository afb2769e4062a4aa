package dynamodb

import (
	"context"
	"sync"
	"testing"
	"time"

	awsddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcache/bitkey"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

// fakeClient is an in-memory stand-in for the DynamoDB API.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func uidOf(key map[string]types.AttributeValue) string {
	return key["uid"].(*types.AttributeValueMemberS).Value
}

func (f *fakeClient) PutItem(_ context.Context, params *awsddb.PutItemInput, _ ...func(*awsddb.Options)) (*awsddb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[uidOf(params.Item)] = params.Item
	return &awsddb.PutItemOutput{}, nil
}

func (f *fakeClient) GetItem(_ context.Context, params *awsddb.GetItemInput, _ ...func(*awsddb.Options)) (*awsddb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[uidOf(params.Key)]
	return &awsddb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, params *awsddb.DeleteItemInput, _ ...func(*awsddb.Options)) (*awsddb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := uidOf(params.Key)
	old := f.items[uid]
	delete(f.items, uid)
	return &awsddb.DeleteItemOutput{Attributes: old}, nil
}

func (f *fakeClient) Scan(_ context.Context, _ *awsddb.ScanInput, _ ...func(*awsddb.Options)) (*awsddb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []map[string]types.AttributeValue
	for _, item := range f.items {
		items = append(items, item)
	}
	return &awsddb.ScanOutput{Items: items}, nil
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
	return segment.NewDenseFloatBody([]float64{1.5}, nil, []segment.AxisValues{
		{Values: segment.NewValueSet(segment.StringValue("CA"))},
	})
}

const budget = time.Second

func TestPutGetContainsRemove(t *testing.T) {
	c := NewWithClient(newFakeClient(), "segcache", nil)
	h := testHeader("CA")

	body, err := c.Get(h).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.Nil(t, body)

	ok, err := c.Put(h, testBody()).AwaitTimeout(budget)
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
	c := NewWithClient(newFakeClient(), "segcache", nil)
	want := map[string]bool{}
	for _, s := range []string{"CA", "OR"} {
		h := testHeader(s)
		want[h.UniqueID()] = true
		_, err := c.Put(h, testBody()).AwaitTimeout(budget)
		require.NoError(t, err)
	}

	headers, err := c.SegmentHeaders().AwaitTimeout(budget)
	require.NoError(t, err)
	require.Len(t, headers, 2)
	for _, h := range headers {
		assert.True(t, want[h.UniqueID()])
	}
}

func TestRichIndexAndTearDown(t *testing.T) {
	c := NewWithClient(newFakeClient(), "segcache", nil)
	assert.True(t, c.SupportsRichIndex())

	c.TearDown()
	_, err := c.Put(testHeader("CA"), testBody()).AwaitTimeout(budget)
	assert.ErrorIs(t, err, provider.ErrTornDown)
}
