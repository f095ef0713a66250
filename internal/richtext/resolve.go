package richtext

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Deriver produces derived images; *asset.Engine implements it.
type Deriver interface {
	Derive(ctx context.Context, ref content.ImageReference, spec asset.Spec) (*asset.DerivedImage, error)
}

// Resolver replaces embedded asset references with derived images.
type Resolver struct {
	deriver Deriver
	spec    asset.Spec
}

// NewResolver creates a resolver deriving embedded images with spec.
func NewResolver(d Deriver, spec asset.Spec) *Resolver {
	return &Resolver{deriver: d, spec: spec}
}

// Resolve returns a copy of doc with every embedded asset replaced by an
// image node, or by a missing-asset marker when the asset is unknown or its
// derivation fails. Other nodes are copied unchanged. The only error is
// cancellation of ctx.
func (r *Resolver) Resolve(ctx context.Context, doc *Node, assets map[string]content.ImageReference) (*Node, error) {
	if doc == nil {
		return nil, nil
	}

	var pending []*Node
	out := copyTree(doc, &pending)

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range pending {
		ref, ok := assets[n.AssetID]
		if !ok {
			n.Kind, n.Reason = KindMissingAsset, "asset not published"
			continue
		}
		g.Go(func() error {
			img, err := r.deriver.Derive(gctx, ref, r.spec)
			if err != nil {
				slog.Warn("Embedded image unavailable", logfields.Asset(n.AssetID), logfields.Error(err))
				n.Kind, n.Reason = KindMissingAsset, "image derivation failed"
				return nil
			}
			n.Kind, n.Image = KindImage, img
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// copyTree deep-copies n, collecting the copies of embedded asset nodes.
func copyTree(n *Node, pending *[]*Node) *Node {
	c := *n
	if n.Marks != nil {
		c.Marks = append([]Mark(nil), n.Marks...)
	}
	if n.Kind == KindEmbeddedAsset {
		*pending = append(*pending, &c)
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = copyTree(child, pending)
		}
	}
	return &c
}
