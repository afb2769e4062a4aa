package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcache/bitkey"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

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
	return segment.NewDenseIntBody([]int64{1}, nil, []segment.AxisValues{
		{Values: segment.NewValueSet(segment.StringValue("CA"))},
	})
}

const budget = time.Second

func TestPutGetRemove(t *testing.T) {
	c := New()
	h := testHeader("CA")

	body, err := c.Get(h).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.Nil(t, body, "absence is a normal result")

	ok, err := c.Put(h, testBody()).AwaitTimeout(budget)
	require.NoError(t, err)
	assert.True(t, ok)

	body, err = c.Get(h).AwaitTimeout(budget)
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Equal(t, 1, body.CellCount())

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

func TestSegmentHeaders(t *testing.T) {
	c := New()
	for _, s := range []string{"CA", "OR"} {
		_, err := c.Put(testHeader(s), testBody()).AwaitTimeout(budget)
		require.NoError(t, err)
	}
	headers, err := c.SegmentHeaders().AwaitTimeout(budget)
	require.NoError(t, err)
	assert.Len(t, headers, 2)
}

func TestListenerEvents(t *testing.T) {
	c := New()
	var mu sync.Mutex
	var events []provider.Event
	l := provider.ListenerFunc(func(e provider.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	c.AddListener(l)

	h := testHeader("CA")
	_, err := c.Put(h, testBody()).AwaitTimeout(budget)
	require.NoError(t, err)
	_, err = c.Remove(h).AwaitTimeout(budget)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, events, 2)
	assert.Equal(t, provider.EntryCreated, events[0].Type)
	assert.True(t, events[0].Local)
	assert.Equal(t, provider.EntryDeleted, events[1].Type)
	mu.Unlock()

	c.RemoveListener(l)
	_, err = c.Put(h, testBody()).AwaitTimeout(budget)
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, events, 2, "removed listener must not fire")
	mu.Unlock()
}

func TestSupportsRichIndex(t *testing.T) {
	assert.True(t, New().SupportsRichIndex())
}

func TestTearDown(t *testing.T) {
	c := New()
	c.TearDown()
	_, err := c.Get(testHeader("CA")).AwaitTimeout(budget)
	assert.ErrorIs(t, err, provider.ErrTornDown)
	_, err = c.Put(testHeader("CA"), testBody()).AwaitTimeout(budget)
	assert.ErrorIs(t, err, provider.ErrTornDown)
}

func TestRegistryOpen(t *testing.T) {
	c, err := provider.Open("memory")
	require.NoError(t, err)
	assert.True(t, c.SupportsRichIndex())

	_, err = provider.Open("no-such-provider")
	assert.Error(t, err)
}
