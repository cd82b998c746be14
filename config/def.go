package config

import (
	"os"
	"slices"
	"sort"
	"strings"
	"time"
)

// OptionDef is an option value declared by a descriptor or the command line.
// Device and Qualifier narrow the objects it applies to; Qualifier is an
// identifier optionally followed by ":<appearance>".
type OptionDef struct {
	Device    string
	Qualifier string
	Name      string
	Key       string
	Value     string
	Source    string
}

// ObjectDef binds a registry identifier to a type tag. Appearance counts, from
// 1, how often the identifier was declared before in the same definition.
type ObjectDef struct {
	Tag        TypeTag
	ID         string
	Device     string
	Appearance int
	Options    []OptionDef
}

// ConfigurationDef is a parsed descriptor with every include merged in. It is
// cached by the Factory and never instantiated directly.
type ConfigurationDef struct {
	Name        string
	Description string
	Objects     []ObjectDef
	Options     []OptionDef
	Devices     []string
	SuiteTags   []string
	Shardable   bool

	sources       map[string]time.Time
	usedTemplates map[string]bool
	appearances   map[string]int
}

func newConfigurationDef(name string) *ConfigurationDef {
	return &ConfigurationDef{
		Name:          name,
		sources:       make(map[string]time.Time),
		usedTemplates: make(map[string]bool),
		appearances:   make(map[string]int),
	}
}

// IsMultiDevice reports whether the definition declares device blocks.
func (d *ConfigurationDef) IsMultiDevice() bool {
	return len(d.Devices) > 0
}

// Bindings returns the objects declared for tag, in declaration order.
func (d *ConfigurationDef) Bindings(tag TypeTag) []ObjectDef {
	var out []ObjectDef
	for _, o := range d.Objects {
		if o.Tag == tag {
			out = append(out, o)
		}
	}
	return out
}

// Sources returns the descriptor files the definition was read from.
func (d *ConfigurationDef) Sources() []string {
	out := make([]string, 0, len(d.sources))
	for path := range d.sources {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (d *ConfigurationDef) addObject(tag TypeTag, id, device string, options []OptionDef) {
	d.appearances[id]++
	d.Objects = append(d.Objects, ObjectDef{
		Tag:        tag,
		ID:         id,
		Device:     device,
		Appearance: d.appearances[id],
		Options:    options,
	})
}

func (d *ConfigurationDef) addDevice(name string) {
	if !slices.Contains(d.Devices, name) {
		d.Devices = append(d.Devices, name)
	}
}

// isStale reports whether a source file changed since it was parsed.
func (d *ConfigurationDef) isStale() bool {
	for path, modTime := range d.sources {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(modTime) {
			return true
		}
	}
	return false
}

func (d *ConfigurationDef) validateDevices() error {
	if !d.IsMultiDevice() {
		return nil
	}
	var tags []string
	for _, o := range d.Objects {
		if o.Device == "" && o.Tag.IsDeviceScoped() && !slices.Contains(tags, string(o.Tag)) {
			tags = append(tags, string(o.Tag))
		}
	}
	if len(tags) > 0 {
		sort.Strings(tags)
		return newConfigError(d.Name, "Tags %v should be included in a <device> tag.", tags)
	}
	return nil
}

func (d *ConfigurationDef) checkUnusedTemplates(templates map[string]string) error {
	var unused []string
	for key, target := range templates {
		if !d.usedTemplates[key] {
			unused = append(unused, key+"="+target)
		}
	}
	if len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return newConfigError(d.Name, "Unused template:map parameters: {%s}", strings.Join(unused, ", "))
}
