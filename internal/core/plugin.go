package core

import "fmt"

// Plugin contributes prototypes to a Synchronizer's registry.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *Registry) error
}

// PluginInfo describes an installed plugin.
type PluginInfo struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Prototypes []string `json:"prototypes"`
}

func installPlugin(registry *Registry, plugin Plugin) (PluginInfo, error) {
	if plugin == nil {
		return PluginInfo{}, fmt.Errorf("nil plugin")
	}
	before := len(registry.order)
	if err := plugin.Register(registry); err != nil {
		return PluginInfo{}, fmt.Errorf("install plugin %s: %w", plugin.Name(), err)
	}
	return PluginInfo{
		Name:       plugin.Name(),
		Version:    plugin.Version(),
		Prototypes: append([]string(nil), registry.order[before:]...),
	}, nil
}
