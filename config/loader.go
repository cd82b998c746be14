package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const descriptorExt = ".yaml"

// descriptor is the on-disk form of a configuration.
type descriptor struct {
	Description string   `yaml:"description"`
	SuiteTags   []string `yaml:"suite-tags"`
	Shardable   bool     `yaml:"shardable"`
	Config      []entry  `yaml:"config"`
}

type entry struct {
	Include         string           `yaml:"include"`
	TemplateInclude *templateInclude `yaml:"template-include"`
	Object          string           `yaml:"object"`
	Class           string           `yaml:"class"`
	Options         []optionEntry    `yaml:"options"`
	Option          *optionEntry     `yaml:"option"`
	Device          string           `yaml:"device"`
	Config          []entry          `yaml:"config"`
}

type templateInclude struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default"`
}

type optionEntry struct {
	Name  string `yaml:"name"`
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// configSource is a descriptor file located on disk.
type configSource struct {
	name    string
	path    string
	bundled bool
}

// loader builds one ConfigurationDef. chain holds the sources currently being
// included, outermost first.
type loader struct {
	f         *Factory
	templates map[string]string
	def       *ConfigurationDef
	chain     []string
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (f *Factory) bundledPath(name string) (string, bool) {
	name = strings.TrimSuffix(name, descriptorExt)
	for _, dir := range f.configDirs {
		path := filepath.Join(dir, name+descriptorExt)
		if isFile(path) {
			return path, true
		}
	}
	return "", false
}

// resolve locates name. Top level names and includes of local descriptors are
// looked up on disk first, relative to the including file, then among the
// bundled configs.
func (f *Factory) resolve(name string, includer *configSource) (configSource, error) {
	local := func(path string) (configSource, bool) {
		if !isFile(path) {
			return configSource{}, false
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return configSource{name: name, path: path}, true
	}
	bundled := func() (configSource, bool) {
		path, ok := f.bundledPath(name)
		return configSource{name: strings.TrimSuffix(name, descriptorExt), path: path, bundled: true}, ok
	}

	switch {
	case includer == nil:
		if src, ok := local(name); ok {
			return src, nil
		}
		if src, ok := bundled(); ok {
			return src, nil
		}
		return configSource{}, newConfigError(name, "Could not find configuration '%s'", name)
	case includer.bundled:
		if src, ok := bundled(); ok {
			return src, nil
		}
		if src, ok := local(name); ok {
			return src, nil
		}
		return configSource{}, newConfigError(includer.name,
			"Bundled config '%s' is including a config '%s' that's neither local nor bundled.", includer.name, name)
	default:
		dir := filepath.Dir(includer.path)
		for _, candidate := range []string{filepath.Join(dir, name), filepath.Join(dir, name+descriptorExt), name} {
			if src, ok := local(candidate); ok {
				return src, nil
			}
		}
		if src, ok := bundled(); ok {
			return src, nil
		}
		return configSource{}, newConfigError(includer.name,
			"Could not find configuration '%s' included by '%s'", name, includer.name)
	}
}

func (l *loader) load(name string, includer *configSource, device string) error {
	src, err := l.f.resolve(name, includer)
	if err != nil {
		return err
	}
	if slices.Contains(l.chain, src.path) {
		return newConfigError(l.def.Name, "Circular configuration include: config '%s' is already included", name)
	}
	l.chain = append(l.chain, src.path)
	defer func() { l.chain = l.chain[:len(l.chain)-1] }()

	info, err := os.Stat(src.path)
	if err != nil {
		return newConfigError(name, "Failed to read config '%s': %v", name, err)
	}
	data, err := os.ReadFile(src.path)
	if err != nil {
		return newConfigError(name, "Failed to read config '%s': %v", name, err)
	}
	var desc descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return newConfigError(name, "Failed to parse config '%s': %v", name, err)
	}
	l.def.sources[src.path] = info.ModTime()

	if len(l.chain) == 1 {
		l.def.Description = desc.Description
		l.def.SuiteTags = desc.SuiteTags
		l.def.Shardable = desc.Shardable
	}
	return l.entries(desc.Config, src, device)
}

func (l *loader) entries(entries []entry, src configSource, device string) error {
	for _, e := range entries {
		switch {
		case e.Include != "":
			if err := l.load(e.Include, &src, device); err != nil {
				return err
			}
		case e.TemplateInclude != nil:
			target, err := l.templateTarget(src.name, e.TemplateInclude)
			if err != nil {
				return err
			}
			if err := l.load(target, &src, device); err != nil {
				return err
			}
		case e.Object != "":
			tag := TypeTag(e.Object)
			if !tag.valid() {
				return newConfigError(src.name, "Unknown object type '%s' in config '%s'", e.Object, src.name)
			}
			if e.Class == "" {
				return newConfigError(src.name, "Object of type '%s' in config '%s' has no class", e.Object, src.name)
			}
			if device != "" && !tag.IsDeviceScoped() {
				return newConfigError(src.name, "Tag %s should not be included in a <device> tag.", tag)
			}
			opts := make([]OptionDef, 0, len(e.Options))
			for _, o := range e.Options {
				opts = append(opts, OptionDef{Name: o.Name, Key: o.Key, Value: o.Value, Source: src.name})
			}
			l.def.addObject(tag, e.Class, device, opts)
		case e.Option != nil:
			optDevice, qualifier, name, err := parseOptionName(e.Option.Name)
			if err != nil {
				return newConfigError(src.name, "%v in config '%s'", err, src.name)
			}
			if device != "" {
				optDevice = device
			}
			l.def.Options = append(l.def.Options, OptionDef{
				Device:    optDevice,
				Qualifier: qualifier,
				Name:      name,
				Key:       e.Option.Key,
				Value:     e.Option.Value,
				Source:    src.name,
			})
		case e.Device != "":
			if device != "" {
				return newConfigError(src.name, "Device '%s' cannot be declared inside device '%s'", e.Device, device)
			}
			l.def.addDevice(e.Device)
			if err := l.entries(e.Config, src, e.Device); err != nil {
				return err
			}
		default:
			return newConfigError(src.name, "Empty entry in config '%s'", src.name)
		}
	}
	return nil
}

// templateTarget resolves a template-include. A --template:map value always
// wins over the declared default, at any nesting depth.
func (l *loader) templateTarget(config string, t *templateInclude) (string, error) {
	if t.Name == "" {
		return "", newConfigError(config, "template-include in config '%s' is missing a name", config)
	}
	if target, ok := l.templates[t.Name]; ok {
		l.def.usedTemplates[t.Name] = true
		return target, nil
	}
	if t.Default != "" {
		return t.Default, nil
	}
	return "", newConfigError(config,
		"Failed to resolve template-include '%s' in config '%s'. Provide it with '--template:map %s <target>' or set a 'default' attribute.",
		t.Name, config, t.Name)
}
