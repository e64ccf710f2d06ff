package feed

import (
	"context"

	"github.com/entrhq/harvest/pkg/container"
)

// ChildFactory returns a container.ChildFactory that builds a list
// container for every discovered region, each with its own ListRefresher.
// base supplies everything except the locator and id.
func ChildFactory(base container.Config, opts Options, extra ...container.Option) container.ChildFactory {
	return func(ctx context.Context, parent *container.Container, region container.ChildRegion) (*container.Container, error) {
		refresher, err := NewListRefresher(opts)
		if err != nil {
			return nil, err
		}
		cfg := container.ChildConfig(parent, region, base)
		options := append([]container.Option{container.WithLogger(parent.Logger())}, extra...)
		return container.New(cfg, refresher, options...)
	}
}
