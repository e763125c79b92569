package capability

// Plugin groups related capabilities under a single name.
type Plugin interface {
	Name() string
	Description() string
	Capabilities() []Capability
}

// PluginInfo summarizes a registered plugin.
type PluginInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"functions"`
}

// StaticPlugin is a Plugin over a fixed capability list.
type StaticPlugin struct {
	name        string
	description string
	caps        []Capability
}

// NewPlugin returns a StaticPlugin. An empty description defaults to
// "Plugin: <name>".
func NewPlugin(name, description string, caps ...Capability) *StaticPlugin {
	if description == "" {
		description = "Plugin: " + name
	}
	return &StaticPlugin{name: name, description: description, caps: caps}
}

func (p *StaticPlugin) Name() string        { return p.name }
func (p *StaticPlugin) Description() string { return p.description }

func (p *StaticPlugin) Capabilities() []Capability {
	out := make([]Capability, len(p.caps))
	copy(out, p.caps)
	return out
}
