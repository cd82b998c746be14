package config

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// TypeTag names the role an object plays in a configuration.
type TypeTag string

const (
	TagBuildProvider      TypeTag = "build_provider"
	TagTargetPreparer     TypeTag = "target_preparer"
	TagDeviceRecovery     TypeTag = "device_recovery"
	TagDeviceRequirements TypeTag = "device_requirements"
	TagTest               TypeTag = "test"
	TagResultReporter     TypeTag = "result_reporter"
	TagLogSaver           TypeTag = "log_saver"
	TagLogger             TypeTag = "logger"
	TagCmdOptions         TypeTag = "cmd_options"
	TagSystemChecker      TypeTag = "system_checker"
	TagProfiler           TypeTag = "profiler"
)

// DeviceTags are bound to a device slot, in the order they are dumped.
var DeviceTags = []TypeTag{
	TagBuildProvider,
	TagTargetPreparer,
	TagDeviceRecovery,
	TagDeviceRequirements,
}

// GlobalTags are shared by every device slot, in the order they are dumped.
var GlobalTags = []TypeTag{
	TagTest,
	TagResultReporter,
	TagLogSaver,
	TagLogger,
	TagCmdOptions,
	TagSystemChecker,
	TagProfiler,
}

func (t TypeTag) IsDeviceScoped() bool {
	return slices.Contains(DeviceTags, t)
}

// IsSingleton reports whether at most one object of this tag may be declared
// per scope (per device slot for device tags).
func (t TypeTag) IsSingleton() bool {
	switch t {
	case TagBuildProvider, TagDeviceRecovery, TagDeviceRequirements,
		TagLogSaver, TagLogger, TagCmdOptions, TagProfiler:
		return true
	}
	return false
}

func (t TypeTag) valid() bool {
	return t.IsDeviceScoped() || slices.Contains(GlobalTags, t)
}

// ObjectFactory creates a fresh object. It is called once per configuration.
type ObjectFactory func() (any, error)

// Registry maps identifiers to object factories, per type tag.
type Registry struct {
	mu        sync.RWMutex
	factories map[TypeTag]map[string]ObjectFactory
	defaults  map[TypeTag]string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[TypeTag]map[string]ObjectFactory),
		defaults:  make(map[TypeTag]string),
	}
}

// Register adds a factory. Registering the same identifier twice is an error.
func (r *Registry) Register(tag TypeTag, id string, factory ObjectFactory) error {
	if !tag.valid() {
		return fmt.Errorf("unknown type tag %q", tag)
	}
	if id == "" || factory == nil {
		return fmt.Errorf("invalid registration for %s", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.factories[tag]
	if !ok {
		byID = make(map[string]ObjectFactory)
		r.factories[tag] = byID
	}
	if _, exists := byID[id]; exists {
		return fmt.Errorf("%s %q is already registered", tag, id)
	}
	byID[id] = factory
	return nil
}

// SetDefault selects the identifier used when a configuration declares no
// object for a singleton tag.
func (r *Registry) SetDefault(tag TypeTag, id string) error {
	if !tag.IsSingleton() {
		return fmt.Errorf("type tag %s cannot have a default", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[tag][id]; !ok {
		return fmt.Errorf("%s %q is not registered", tag, id)
	}
	r.defaults[tag] = id
	return nil
}

func (r *Registry) Default(tag TypeTag) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.defaults[tag]
	return id, ok
}

func (r *Registry) Has(tag TypeTag, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[tag][id]
	return ok
}

// Identifiers returns the registered identifiers of a tag, sorted.
func (r *Registry) Identifiers(tag TypeTag) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories[tag]))
	for id := range r.factories[tag] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Create instantiates the object registered under id and checks that it can
// serve the tag.
func (r *Registry) Create(tag TypeTag, id string) (any, error) {
	r.mu.RLock()
	factory, ok := r.factories[tag][id]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{
			Message: fmt.Sprintf("Could not find object '%s' for type tag '%s'", id, tag),
		}
	}
	obj, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %q: %w", tag, id, err)
	}
	if !implementsTag(tag, obj) {
		return nil, &ConfigurationError{
			Message: fmt.Sprintf("Object '%s' (%T) cannot be used as %s", id, obj, tag),
		}
	}
	return obj, nil
}

func implementsTag(tag TypeTag, obj any) bool {
	var ok bool
	switch tag {
	case TagBuildProvider:
		_, ok = obj.(types.BuildProvider)
	case TagTargetPreparer:
		_, ok = obj.(types.TargetPreparer)
	case TagDeviceRecovery:
		_, ok = obj.(types.DeviceRecovery)
	case TagDeviceRequirements:
		_, ok = obj.(*DeviceRequirements)
	case TagTest:
		_, ok = obj.(testtype.RemoteTest)
	case TagResultReporter:
		_, ok = obj.(result.InvocationListener)
	case TagLogSaver:
		_, ok = obj.(result.LogSaver)
	case TagLogger:
		_, ok = obj.(types.LogOutput)
	case TagCmdOptions:
		_, ok = obj.(*CommandOptions)
	case TagSystemChecker:
		_, ok = obj.(types.SystemStatusChecker)
	case TagProfiler:
		_, ok = obj.(result.Profiler)
	}
	return ok
}
