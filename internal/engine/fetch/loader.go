package fetch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// Loader resolves a timestep and fetches its component files.
type Loader struct {
	Resolver Resolver
	Fetcher  Fetcher
}

// NewLoader wires a TemplateResolver and an HTTPFetcher.
func NewLoader(baseURL string, runtime *types.RuntimeConfig) *Loader {
	return &Loader{
		Resolver: TemplateResolver{BaseURL: baseURL},
		Fetcher:  NewHTTPFetcher(runtime),
	}
}

// Load returns a single payload, or a pair for dual-component steps.
// Both components of a pair are fetched concurrently.
func (l *Loader) Load(ctx context.Context, layer types.LayerID, step types.TimeStep) (*types.Payload, error) {
	urls, err := l.Resolver.Resolve(layer, step)
	if err != nil {
		return nil, err
	}

	switch len(urls) {
	case 1:
		data, err := l.Fetcher.Fetch(ctx, urls[0])
		if err != nil {
			return nil, err
		}
		return &types.Payload{Kind: types.PayloadSingle, Data: data}, nil

	case 2:
		var u, v []byte
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			u, err = l.Fetcher.Fetch(gctx, urls[0])
			return err
		})
		g.Go(func() error {
			var err error
			v, err = l.Fetcher.Fetch(gctx, urls[1])
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if len(u) != len(v) {
			return nil, &types.FormatError{URL: urls[1], Reason: fmt.Sprintf("component sizes differ (%d vs %d bytes)", len(u), len(v))}
		}
		return &types.Payload{Kind: types.PayloadPair, U: u, V: v}, nil
	}
	return nil, fmt.Errorf("timestep %s: resolver returned %d urls", step.Label(), len(urls))
}
