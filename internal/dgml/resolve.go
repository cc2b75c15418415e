package dgml

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Resolver upgrades a generic node into a node that points at metadata. It
// returns the node it was given when nothing matches.
type Resolver interface {
	Resolve(node *Node) *Node
}

// Resolve runs resolver over every generic node that has not been offered to
// a resolver before, using at most workers goroutines (unbounded when
// workers <= 0). Matches replace the stored node; the count of replaced nodes
// is returned.
func Resolve(ctx context.Context, g *Graph, resolver Resolver, workers int) (int, error) {
	var candidates []*Node
	for _, node := range g.Nodes() {
		if node.Kind != KindNode {
			continue
		}
		if _, seen := g.matched[node.Index]; seen {
			continue
		}
		candidates = append(candidates, node)
	}

	results := make([]*Node, len(candidates))
	group, groupCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		group.SetLimit(workers)
	}
	for i, node := range candidates {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			results[i] = resolver.Resolve(node)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resolved := 0
	for i, node := range candidates {
		g.matched[node.Index] = struct{}{}
		upgraded := results[i]
		if upgraded == nil || upgraded == node || upgraded.Index != node.Index {
			continue
		}
		g.nodes[node.Index] = upgraded
		resolved++
	}
	return resolved, nil
}
