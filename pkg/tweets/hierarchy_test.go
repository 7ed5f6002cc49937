package tweets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryGraph serves the reply relation from a slice.
type memoryGraph struct {
	tweets []Tweet
}

func (g *memoryGraph) FindByID(_ context.Context, id int64) (*Tweet, error) {
	for i := range g.tweets {
		if g.tweets[i].ID == id {
			tweet := g.tweets[i]
			return &tweet, nil
		}
	}
	return nil, nil
}

func (g *memoryGraph) FindReplies(_ context.Context, parentIDs []int64) ([]Tweet, error) {
	parents := make(map[int64]bool, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = true
	}
	var replies []Tweet
	for _, tweet := range g.tweets {
		if tweet.InReplyTo != nil && parents[tweet.InReplyTo.StatusID] {
			replies = append(replies, tweet)
		}
	}
	return replies, nil
}

func graphTweet(id int64, createdAt time.Time, replyTo int64) Tweet {
	tweet := Tweet{
		ID:        id,
		CreatedAt: createdAt,
		Content:   "content",
		Source:    "web",
	}
	if replyTo != 0 {
		tweet.InReplyTo = &InReplyTo{StatusID: replyTo, ScreenName: "someone", UserID: 1}
	}
	return tweet
}

func collectIDs(tweets []Tweet) []int64 {
	ids := make([]int64, len(tweets))
	for i, tweet := range tweets {
		ids[i] = tweet.ID
	}
	return ids
}

func TestHierarchyResolveOrdering(t *testing.T) {
	base := time.Date(2016, time.September, 5, 10, 0, 0, 0, time.UTC)
	graph := &memoryGraph{tweets: []Tweet{
		graphTweet(1, base, 0),
		graphTweet(2, base.Add(5*time.Minute), 1),
		graphTweet(3, base.Add(15*time.Minute), 2),
		// Same timestamp as tweet 2, the id breaks the tie.
		graphTweet(4, base.Add(5*time.Minute), 1),
	}}

	result, err := NewHierarchyResolver(graph).Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4, 3}, collectIDs(result))
}

func TestHierarchyResolveDeepChain(t *testing.T) {
	base := time.Date(2016, time.September, 5, 10, 0, 0, 0, time.UTC)
	graph := &memoryGraph{tweets: []Tweet{
		graphTweet(1, base, 0),
		graphTweet(2, base.Add(time.Minute), 1),
		graphTweet(3, base.Add(2*time.Minute), 2),
		graphTweet(4, base.Add(3*time.Minute), 3),
		// Sibling thread hanging off the root.
		graphTweet(5, base.Add(30*time.Second), 1),
	}}

	result, err := NewHierarchyResolver(graph).Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 2, 3, 4}, collectIDs(result))
}

func TestHierarchyResolveUnknownRoot(t *testing.T) {
	graph := &memoryGraph{}

	result, err := NewHierarchyResolver(graph).Resolve(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestHierarchyResolveRootWithoutReplies(t *testing.T) {
	base := time.Date(2016, time.September, 5, 10, 0, 0, 0, time.UTC)
	graph := &memoryGraph{tweets: []Tweet{graphTweet(1, base, 0)}}

	result, err := NewHierarchyResolver(graph).Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, collectIDs(result))
}

func TestHierarchyResolveTerminatesOnCycle(t *testing.T) {
	base := time.Date(2016, time.September, 5, 10, 0, 0, 0, time.UTC)
	graph := &memoryGraph{tweets: []Tweet{
		graphTweet(100, base, 101),
		graphTweet(101, base.Add(time.Minute), 100),
	}}

	result, err := NewHierarchyResolver(graph).Resolve(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101}, collectIDs(result))
}

func TestHierarchyResolveCancelledContext(t *testing.T) {
	base := time.Date(2016, time.September, 5, 10, 0, 0, 0, time.UTC)
	graph := &memoryGraph{tweets: []Tweet{
		graphTweet(1, base, 0),
		graphTweet(2, base.Add(time.Minute), 1),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHierarchyResolver(graph).Resolve(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
