package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// DeviceConfiguration holds the objects bound to one device slot.
type DeviceConfiguration struct {
	name          string
	buildProvider types.BuildProvider
	preparers     []types.TargetPreparer
	recovery      types.DeviceRecovery
	requirements  *DeviceRequirements
}

func (d *DeviceConfiguration) Name() string { return d.name }
func (d *DeviceConfiguration) BuildProvider() types.BuildProvider { return d.buildProvider }
func (d *DeviceConfiguration) Recovery() types.DeviceRecovery { return d.recovery }
func (d *DeviceConfiguration) Requirements() *DeviceRequirements { return d.requirements }

// TargetPreparers returns the preparers in declaration order.
func (d *DeviceConfiguration) TargetPreparers() []types.TargetPreparer {
	return slices.Clone(d.preparers)
}

func (d *DeviceConfiguration) clone() *DeviceConfiguration {
	c := *d
	c.preparers = slices.Clone(d.preparers)
	return &c
}

// configObject is one instantiated object together with where it came from.
type configObject struct {
	tag        TypeTag
	id         string
	device     string
	appearance int
	value      any
	defOptions []OptionDef
	set        map[string]bool
}

// Configuration is a resolved, instantiated object graph. It is only built by
// a Factory; everything else reads it through getters that return copies.
type Configuration struct {
	name        string
	description string
	devices     []*DeviceConfiguration
	tests       []testtype.RemoteTest
	listeners   []result.InvocationListener
	logSaver    result.LogSaver
	logOutput   types.LogOutput
	profiler    result.Profiler
	checkers    []types.SystemStatusChecker
	cmdOptions  *CommandOptions
	suiteTags   []string
	shardable   bool
	multiDevice bool
	commandLine []string
	factory     *Factory
	objects     []*configObject
}

func (c *Configuration) Name() string { return c.name }
func (c *Configuration) Description() string { return c.description }
func (c *Configuration) IsMultiDevice() bool { return c.multiDevice }
func (c *Configuration) IsShardable() bool { return c.shardable }

func (c *Configuration) DeviceConfigs() []*DeviceConfiguration {
	return slices.Clone(c.devices)
}

// DeviceConfig returns the slot called name.
func (c *Configuration) DeviceConfig(name string) (*DeviceConfiguration, bool) {
	for _, d := range c.devices {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

func (c *Configuration) Tests() []testtype.RemoteTest {
	return slices.Clone(c.tests)
}

func (c *Configuration) Listeners() []result.InvocationListener {
	return slices.Clone(c.listeners)
}

// LogSaver returns the configured saver, or a saver that keeps nothing.
func (c *Configuration) LogSaver() result.LogSaver {
	if c.logSaver == nil {
		return result.NopLogSaver{}
	}
	return c.logSaver
}

// LogOutput may be nil when no logger is registered.
func (c *Configuration) LogOutput() types.LogOutput { return c.logOutput }

// Profiler may be nil.
func (c *Configuration) Profiler() result.Profiler { return c.profiler }

func (c *Configuration) SystemStatusCheckers() []types.SystemStatusChecker {
	return slices.Clone(c.checkers)
}

// CommandOptions is never nil.
func (c *Configuration) CommandOptions() *CommandOptions {
	if c.cmdOptions == nil {
		return NewCommandOptions()
	}
	return c.cmdOptions
}

func (c *Configuration) SuiteTags() []string {
	return slices.Clone(c.suiteTags)
}

// Factory returns the factory that resolved the configuration, or nil.
func (c *Configuration) Factory() *Factory { return c.factory }

// CommandLine returns the tokens the configuration was resolved from.
func (c *Configuration) CommandLine() []string {
	return slices.Clone(c.commandLine)
}

// Override lists what Derive replaces. Nil fields keep the original value.
type Override struct {
	Tests          []testtype.RemoteTest
	Listeners      []result.InvocationListener
	LogSaver       result.LogSaver
	LogOutput      types.LogOutput
	BuildProviders map[string]types.BuildProvider
	CommandOptions *CommandOptions
}

// Derive returns a copy of the configuration with the overrides applied. The
// receiver is left untouched.
func (c *Configuration) Derive(o Override) *Configuration {
	d := *c
	d.devices = make([]*DeviceConfiguration, 0, len(c.devices))
	for _, dc := range c.devices {
		dc = dc.clone()
		if bp, ok := o.BuildProviders[dc.name]; ok {
			dc.buildProvider = bp
		}
		d.devices = append(d.devices, dc)
	}
	if o.Tests != nil {
		d.tests = slices.Clone(o.Tests)
	}
	if o.Listeners != nil {
		d.listeners = slices.Clone(o.Listeners)
	}
	if o.LogSaver != nil {
		d.logSaver = o.LogSaver
	}
	if o.LogOutput != nil {
		d.logOutput = o.LogOutput
	}
	if o.CommandOptions != nil {
		d.cmdOptions = o.CommandOptions
	}
	return &d
}

// Clone resolves the configuration again from its command line, producing
// fresh objects.
func (c *Configuration) Clone(ctx context.Context) (*Configuration, error) {
	if c.factory == nil {
		return nil, fmt.Errorf("configuration %s was not created by a factory", c.name)
	}
	return c.factory.CreateConfigurationFromArgs(ctx, c.commandLine)
}

// ValidateOptions checks that every mandatory option received a value.
func (c *Configuration) ValidateOptions() error {
	for _, o := range c.objects {
		for _, f := range declaredOptions(o.value) {
			if f.mandatory && !o.set[f.name] && f.value.IsZero() {
				return newConfigError(c.name, "Option '%s' of %s '%s' is mandatory but was not set", f.name, o.tag, o.id)
			}
		}
	}
	opts := c.CommandOptions()
	if opts.ShardIndex >= 0 && opts.ShardIndex >= opts.ShardCount {
		return newConfigError(c.name, "shard-index %d is out of range for shard-count %d", opts.ShardIndex, opts.ShardCount)
	}
	return nil
}

// Dump writes the resolved object graph with every option value.
func (c *Configuration) Dump(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "configuration: %s\n", c.name)
	if c.description != "" {
		fmt.Fprintf(&b, "description: %s\n", c.description)
	}
	dumpObject := func(indent string, o *configObject) {
		fmt.Fprintf(&b, "%s%s: %s\n", indent, o.tag, o.id)
		for _, f := range declaredOptions(o.value) {
			fmt.Fprintf(&b, "%s  %s: %s\n", indent, f.name, f)
		}
	}
	for _, dc := range c.devices {
		fmt.Fprintf(&b, "device: %s\n", dc.name)
		for _, tag := range DeviceTags {
			for _, o := range c.objects {
				if o.tag == tag && o.device == dc.name {
					dumpObject("  ", o)
				}
			}
		}
	}
	for _, tag := range GlobalTags {
		for _, o := range c.objects {
			if o.tag == tag {
				dumpObject("", o)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// candidates returns the objects an option scoped by device and qualifier
// may apply to.
func (c *Configuration) candidates(device, qualifier string) []*configObject {
	id, appearance := splitQualifier(qualifier)
	var out []*configObject
	for _, o := range c.objects {
		if device != "" && o.device != device {
			continue
		}
		if id != "" && (o.id != id || (appearance > 0 && o.appearance != appearance)) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// optionKind returns the kind of the first candidate declaring the option.
func (c *Configuration) optionKind(opt OptionDef) optionKind {
	for _, o := range c.candidates(opt.Device, opt.Qualifier) {
		if f, ok := lookupOption(o.value, opt.Name); ok {
			return f.kind()
		}
	}
	return kindUnknown
}

func (c *Configuration) deviceConfig(name string) *DeviceConfiguration {
	dc, _ := c.DeviceConfig(name)
	return dc
}

func (c *Configuration) singletonError(tag TypeTag) error {
	return newConfigError(c.name, "Only one config object allowed for %s, but multiple were specified.", tag)
}

// bind stores obj in the slot its tag belongs to.
func (c *Configuration) bind(tag TypeTag, device string, obj any) error {
	if tag.IsDeviceScoped() {
		dc := c.deviceConfig(device)
		if dc == nil {
			return newConfigError(c.name, "Unknown device '%s'", device)
		}
		switch tag {
		case TagBuildProvider:
			if dc.buildProvider != nil {
				return c.singletonError(tag)
			}
			dc.buildProvider = obj.(types.BuildProvider)
		case TagTargetPreparer:
			dc.preparers = append(dc.preparers, obj.(types.TargetPreparer))
		case TagDeviceRecovery:
			if dc.recovery != nil {
				return c.singletonError(tag)
			}
			dc.recovery = obj.(types.DeviceRecovery)
		case TagDeviceRequirements:
			if dc.requirements != nil {
				return c.singletonError(tag)
			}
			dc.requirements = obj.(*DeviceRequirements)
		}
		return nil
	}
	switch tag {
	case TagTest:
		c.tests = append(c.tests, obj.(testtype.RemoteTest))
	case TagResultReporter:
		c.listeners = append(c.listeners, obj.(result.InvocationListener))
	case TagSystemChecker:
		c.checkers = append(c.checkers, obj.(types.SystemStatusChecker))
	case TagLogSaver:
		if c.logSaver != nil {
			return c.singletonError(tag)
		}
		c.logSaver = obj.(result.LogSaver)
	case TagLogger:
		if c.logOutput != nil {
			return c.singletonError(tag)
		}
		c.logOutput = obj.(types.LogOutput)
	case TagCmdOptions:
		if c.cmdOptions != nil {
			return c.singletonError(tag)
		}
		c.cmdOptions = obj.(*CommandOptions)
	case TagProfiler:
		if c.profiler != nil {
			return c.singletonError(tag)
		}
		c.profiler = obj.(result.Profiler)
	}
	return nil
}

func (c *Configuration) addObject(tag TypeTag, id, device string, appearance int, obj any, opts []OptionDef) error {
	if err := c.bind(tag, device, obj); err != nil {
		return err
	}
	c.objects = append(c.objects, &configObject{
		tag:        tag,
		id:         id,
		device:     device,
		appearance: appearance,
		value:      obj,
		defOptions: opts,
		set:        make(map[string]bool),
	})
	return nil
}

func (c *Configuration) nextAppearance(id string) int {
	n := 1
	for _, o := range c.objects {
		if o.id == id {
			n++
		}
	}
	return n
}

// fillDefaults creates the registry default for every singleton that was not
// declared.
func (c *Configuration) fillDefaults(registry *Registry) error {
	missing := func(tag TypeTag, dc *DeviceConfiguration) bool {
		switch tag {
		case TagBuildProvider:
			return dc.buildProvider == nil
		case TagDeviceRecovery:
			return dc.recovery == nil
		case TagDeviceRequirements:
			return dc.requirements == nil
		case TagLogSaver:
			return c.logSaver == nil
		case TagLogger:
			return c.logOutput == nil
		case TagCmdOptions:
			return c.cmdOptions == nil
		case TagProfiler:
			return c.profiler == nil
		}
		return false
	}
	create := func(tag TypeTag, device string) error {
		id, ok := registry.Default(tag)
		if !ok {
			return nil
		}
		obj, err := registry.Create(tag, id)
		if err != nil {
			return err
		}
		return c.addObject(tag, id, device, c.nextAppearance(id), obj, nil)
	}

	for _, dc := range c.devices {
		for _, tag := range DeviceTags {
			if tag.IsSingleton() && missing(tag, dc) {
				if err := create(tag, dc.name); err != nil {
					return err
				}
			}
		}
		if dc.requirements == nil {
			if err := c.addObject(TagDeviceRequirements, "default", dc.name, c.nextAppearance("default"), NewDeviceRequirements(), nil); err != nil {
				return err
			}
		}
	}
	for _, tag := range GlobalTags {
		if tag.IsSingleton() && missing(tag, nil) {
			if err := create(tag, ""); err != nil {
				return err
			}
		}
	}
	if c.cmdOptions == nil {
		return c.addObject(TagCmdOptions, "default", "", c.nextAppearance("default"), NewCommandOptions(), nil)
	}
	return nil
}

// createConfiguration instantiates every object of the definition.
func (d *ConfigurationDef) createConfiguration(registry *Registry) (*Configuration, error) {
	cfg := &Configuration{
		name:        d.Name,
		description: d.Description,
		suiteTags:   slices.Clone(d.SuiteTags),
		shardable:   d.Shardable,
		multiDevice: d.IsMultiDevice(),
	}
	slots := d.Devices
	if !cfg.multiDevice {
		slots = []string{DefaultDeviceName}
	}
	for _, name := range slots {
		cfg.devices = append(cfg.devices, &DeviceConfiguration{name: name})
	}

	for _, od := range d.Objects {
		device := od.Device
		if od.Tag.IsDeviceScoped() && device == "" {
			device = DefaultDeviceName
		}
		obj, err := registry.Create(od.Tag, od.ID)
		if err != nil {
			return nil, withConfig(err, d.Name)
		}
		if err := cfg.addObject(od.Tag, od.ID, device, od.Appearance, obj, od.Options); err != nil {
			return nil, err
		}
	}
	if err := cfg.fillDefaults(registry); err != nil {
		return nil, withConfig(err, d.Name)
	}
	return cfg, nil
}

func withConfig(err error, name string) error {
	var ce *ConfigurationError
	if errors.As(err, &ce) && ce.Config == "" {
		ce.Config = name
	}
	return err
}
