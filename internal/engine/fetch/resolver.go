package fetch

import (
	"fmt"

	"github.com/surge-downloader/gridsync/internal/engine/types"
	"github.com/surge-downloader/gridsync/internal/utils"
)

// Resolver turns a timestep into the URLs of its component files.
type Resolver interface {
	Resolve(layer types.LayerID, step types.TimeStep) ([]string, error)
}

// TemplateResolver maps each source to BaseURL/<layer>/<source>.
type TemplateResolver struct {
	BaseURL string
}

func (r TemplateResolver) Resolve(layer types.LayerID, step types.TimeStep) ([]string, error) {
	if n := len(step.Sources); n < 1 || n > 2 {
		return nil, fmt.Errorf("timestep %s: want 1 or 2 sources, got %d", step.Label(), n)
	}
	urls := make([]string, 0, len(step.Sources))
	for _, src := range step.Sources {
		u, err := utils.JoinURL(r.BaseURL, string(layer), src)
		if err != nil {
			return nil, fmt.Errorf("resolve %s/%s: %w", layer, src, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}
