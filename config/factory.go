package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
)

const DefaultCacheSize = 64

// Config holds the factory's configuration
type Config struct {
	Log        log.Logger
	Registry   *Registry
	ConfigDirs []string
	KeyStore   KeyStore
	CacheSize  int
}

// Factory resolves configuration names and CLI tokens into Configurations.
// Parsed definitions are cached; objects are created fresh for every call.
type Factory struct {
	log        log.Logger
	registry   *Registry
	configDirs []string
	keyStore   KeyStore
	cache      *lru.Cache[string, *ConfigurationDef]
}

func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *ConfigurationDef](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create config cache: %w", err)
	}
	return &Factory{
		log:        cfg.Log.New("component", "config"),
		registry:   cfg.Registry,
		configDirs: slices.Clone(cfg.ConfigDirs),
		keyStore:   cfg.KeyStore,
		cache:      cache,
	}, nil
}

func (f *Factory) Registry() *Registry { return f.registry }

// CreateConfigurationFromArgs resolves args[0], a bundled configuration name
// or a descriptor path, and applies the remaining tokens as options.
func (f *Factory) CreateConfigurationFromArgs(ctx context.Context, args []string) (*Configuration, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, &ConfigurationError{Message: "No configuration name provided"}
	}
	args = ReorderArgs(args)
	name := args[0]
	templates, tokens, err := extractTemplates(name, args[1:])
	if err != nil {
		return nil, err
	}
	def, err := f.loadDef(name, templates)
	if err != nil {
		return nil, err
	}
	cfg, err := def.createConfiguration(f.registry)
	if err != nil {
		return nil, err
	}
	cfg.factory = f
	cfg.commandLine = slices.Clone(args)

	setter := &optionSetter{
		cfg:      cfg,
		ctx:      ctx,
		keyStore: f.keyStore,
		dryRun:   isDryRun(tokens) || def.declaresDryRun(),
	}
	if err := setter.applyDescriptor(def); err != nil {
		return nil, err
	}
	if err := setter.applyArgs(tokens); err != nil {
		return nil, err
	}
	for _, t := range cfg.tests {
		if r, ok := t.(ConfigurationReceiver); ok {
			r.SetConfiguration(cfg)
		}
	}
	f.log.Debug("Created configuration", "config", name, "objects", len(cfg.objects), "dryRun", setter.dryRun)
	return cfg, nil
}

func cacheKey(name string, templates map[string]string) string {
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, templates[k])
	}
	return b.String()
}

// loadDef returns the definition for name, from the cache unless one of its
// source files changed since it was parsed.
func (f *Factory) loadDef(name string, templates map[string]string) (*ConfigurationDef, error) {
	key := cacheKey(name, templates)
	if def, ok := f.cache.Get(key); ok {
		if !def.isStale() {
			metrics.RecordConfigCache(metrics.CacheHit)
			return def, nil
		}
		metrics.RecordConfigCache(metrics.CacheStale)
		f.log.Debug("Reloading changed configuration", "config", name)
	} else {
		metrics.RecordConfigCache(metrics.CacheMiss)
	}

	l := &loader{
		f:         f,
		templates: templates,
		def:       newConfigurationDef(name),
	}
	if err := l.load(name, nil, ""); err != nil {
		return nil, err
	}
	if err := l.def.checkUnusedTemplates(templates); err != nil {
		return nil, err
	}
	if err := l.def.validateDevices(); err != nil {
		return nil, err
	}
	f.cache.Add(key, l.def)
	return l.def, nil
}

// ListBundledConfigs returns the names of the descriptors found in the config
// directories. A name found in several directories is listed once.
func (f *Factory) ListBundledConfigs() ([]string, error) {
	var names []string
	for _, dir := range f.configDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read config dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), descriptorExt) {
				continue
			}
			name := strings.TrimSuffix(e.Name(), descriptorExt)
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// ConfigsForSuiteTag returns the bundled configs that declare tag in their
// suite-tags. Configs that cannot be loaded on their own are skipped.
func (f *Factory) ConfigsForSuiteTag(tag string) ([]string, error) {
	names, err := f.ListBundledConfigs()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		def, err := f.loadDef(name, nil)
		if err != nil {
			f.log.Debug("Skipping config while looking up suite tag", "config", name, "tag", tag, "err", err)
			continue
		}
		if slices.Contains(def.SuiteTags, tag) {
			out = append(out, name)
		}
	}
	return out, nil
}

func (d *ConfigurationDef) declaresDryRun() bool {
	dryRun := false
	for _, o := range d.Options {
		if o.Name == "dry-run" {
			dryRun = o.Value == "" || o.Value == "true"
		}
	}
	return dryRun
}

// optionSetter applies option values to the objects of one configuration.
type optionSetter struct {
	cfg      *Configuration
	ctx      context.Context
	keyStore KeyStore
	dryRun   bool
}

func (s *optionSetter) notFound(name string) error {
	return newConfigError(s.cfg.name, "Could not find option with name %s", name)
}

// applyDescriptor applies global descriptor options, then the options declared
// on individual objects.
func (s *optionSetter) applyDescriptor(def *ConfigurationDef) error {
	for _, opt := range def.Options {
		if err := s.apply(opt); err != nil {
			return err
		}
	}
	for _, o := range s.cfg.objects {
		for _, opt := range o.defOptions {
			field, ok := lookupOption(o.value, opt.Name)
			if !ok {
				return s.notFound(opt.Name)
			}
			if err := s.set(o, field, opt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *optionSetter) checkDevice(opt OptionDef) error {
	if opt.Device == "" {
		return nil
	}
	if _, ok := s.cfg.DeviceConfig(opt.Device); !ok {
		return newConfigError(s.cfg.name, "Could not find device '%s' for option %s", opt.Device, opt.Name)
	}
	return nil
}

// apply sets opt on every candidate object that declares it.
func (s *optionSetter) apply(opt OptionDef) error {
	if err := s.checkDevice(opt); err != nil {
		return err
	}
	matched := false
	for _, o := range s.cfg.candidates(opt.Device, opt.Qualifier) {
		field, ok := lookupOption(o.value, opt.Name)
		if !ok {
			continue
		}
		matched = true
		if err := s.set(o, field, opt); err != nil {
			return err
		}
	}
	if !matched {
		return s.notFound(opt.Name)
	}
	return nil
}

func (s *optionSetter) set(o *configObject, field optionField, opt OptionDef) error {
	value := opt.Value
	if key, ok := strings.CutPrefix(value, KeyStorePrefix); ok {
		if s.dryRun {
			// Only record the option; the key store is not consulted.
			o.set[field.name] = true
			return nil
		}
		if s.keyStore == nil {
			return newConfigError(s.cfg.name, "Option %s reads from the key store, but no key store is configured", opt.Name)
		}
		v, err := s.keyStore.Get(s.ctx, key)
		if err != nil {
			return newConfigError(s.cfg.name, "Failed to read key '%s' for option %s: %v", key, opt.Name, err)
		}
		value = v
	}
	if err := field.set(opt.Key, value); err != nil {
		return newConfigError(s.cfg.name, "Invalid value for option %s of %s '%s': %v", opt.Name, o.tag, o.id, err)
	}
	o.set[field.name] = true
	return nil
}

// applyArgs parses CLI tokens and applies them in order.
func (s *optionSetter) applyArgs(tokens []string) error {
	var unprocessed []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok, "-") || strings.Trim(tok, "-") == "" {
			unprocessed = append(unprocessed, tok)
			continue
		}
		raw, inline, hasInline := strings.Cut(strings.TrimLeft(tok, "-"), "=")
		device, qualifier, name, err := parseOptionName(raw)
		if err != nil {
			return newConfigError(s.cfg.name, "%v", err)
		}
		opt := OptionDef{Device: device, Qualifier: qualifier, Name: name, Source: "command line"}
		if err := s.checkDevice(opt); err != nil {
			return err
		}

		kind := s.cfg.optionKind(opt)
		negated := false
		if base, ok := strings.CutPrefix(name, "no-"); ok && kind == kindUnknown {
			positive := opt
			positive.Name = base
			if s.cfg.optionKind(positive) == kindBool {
				opt, kind, negated = positive, kindBool, true
			}
		}

		switch kind {
		case kindUnknown:
			return s.notFound(name)
		case kindBool:
			switch {
			case negated && hasInline:
				return newConfigError(s.cfg.name, "Option %s does not take a value", name)
			case negated:
				opt.Value = "false"
			case hasInline:
				opt.Value = inline
			default:
				opt.Value = "true"
			}
		case kindMap:
			if !hasInline {
				if i+1 >= len(tokens) {
					return newConfigError(s.cfg.name, "Missing key for option %s", name)
				}
				i++
				inline = tokens[i]
			}
			if key, value, ok := strings.Cut(inline, "="); ok {
				opt.Key, opt.Value = key, value
				break
			}
			if i+1 >= len(tokens) {
				return newConfigError(s.cfg.name, "Missing value for option %s %s", name, inline)
			}
			i++
			opt.Key, opt.Value = inline, tokens[i]
		default:
			if hasInline {
				opt.Value = inline
			} else {
				if i+1 >= len(tokens) {
					return newConfigError(s.cfg.name, "Missing value for option %s", name)
				}
				i++
				opt.Value = tokens[i]
			}
		}
		if err := s.apply(opt); err != nil {
			return err
		}
	}
	if len(unprocessed) > 0 {
		return newConfigError(s.cfg.name, "Invalid arguments provided. Unprocessed arguments: %v", unprocessed)
	}
	return nil
}
