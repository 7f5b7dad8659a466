package fibercache

import "github.com/hupe1980/fibercache/internal/resource"

// ResourceController accounts off-heap memory and throttles IO.
type ResourceController = resource.Controller

// ResourceConfig configures a ResourceController.
type ResourceConfig = resource.Config

// NewResourceController creates a ResourceController. Zero limits disable
// the corresponding bound.
func NewResourceController(cfg ResourceConfig) *ResourceController {
	return resource.NewController(cfg)
}
