package tweets

import (
	"context"
	"fmt"
	"sort"
)

// GraphReader is the read-only view of the reply-edge relation the resolver
// traverses. *Repository satisfies it.
type GraphReader interface {
	// FindByID returns nil, nil when the tweet does not exist.
	FindByID(ctx context.Context, id int64) (*Tweet, error)
	// FindReplies returns all tweets replying to any of the given ids.
	FindReplies(ctx context.Context, parentIDs []int64) ([]Tweet, error)
}

// HierarchyResolver reconstructs a tweet and everything that replies to it,
// transitively. The traversal is an iterative fixed point over the reply
// relation rather than a recursive SQL query, so it works against any
// GraphReader and carries its own cycle guard.
type HierarchyResolver struct {
	graph GraphReader
}

// NewHierarchyResolver creates a resolver over the given graph.
func NewHierarchyResolver(graph GraphReader) *HierarchyResolver {
	return &HierarchyResolver{graph: graph}
}

// Resolve returns the tweet with the given id and all transitive replies to
// it, ordered ascending by creation time with ties broken by id. An unknown
// root yields an empty list, the same shape as a root without replies.
//
// Malformed cyclic data terminates: an id already collected is never
// expanded again.
func (r *HierarchyResolver) Resolve(ctx context.Context, rootID int64) ([]Tweet, error) {
	root, err := r.graph.FindByID(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hierarchy of %d: %w", rootID, err)
	}
	if root == nil {
		return []Tweet{}, nil
	}

	seen := map[int64]bool{root.ID: true}
	result := []Tweet{*root}
	frontier := []int64{root.ID}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		replies, err := r.graph.FindReplies(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve hierarchy of %d: %w", rootID, err)
		}

		frontier = frontier[:0]
		for _, reply := range replies {
			if seen[reply.ID] {
				continue
			}
			seen[reply.ID] = true
			result = append(result, reply)
			frontier = append(frontier, reply.ID)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
