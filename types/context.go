package types

import (
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// InvocationContext holds the devices and builds bound to one invocation
// attempt, plus free-form attributes collected along the way. It outlives a
// single attempt: resumed continuations reuse it.
type InvocationContext struct {
	mu         sync.RWMutex
	id         string
	configName string
	testTag    string
	names      []string
	devices    map[string]Device
	builds     map[string]*BuildInfo
	attributes map[string][]string
}

func NewInvocationContext() *InvocationContext {
	return &InvocationContext{
		id:         uuid.New().String(),
		devices:    make(map[string]Device),
		builds:     make(map[string]*BuildInfo),
		attributes: make(map[string][]string),
	}
}

func (c *InvocationContext) InvocationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *InvocationContext) ConfigName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configName
}

func (c *InvocationContext) SetConfigName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configName = name
}

func (c *InvocationContext) TestTag() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.testTag
}

func (c *InvocationContext) SetTestTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testTag = tag
}

// AddAllocatedDevice binds a device to a device slot name. Slot order is the
// order of the first binding.
func (c *InvocationContext) AddAllocatedDevice(name string, device Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.devices[name]; !ok {
		c.names = append(c.names, name)
	}
	c.devices[name] = device
}

// DeviceNames returns the slot names in binding order.
func (c *InvocationContext) DeviceNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.names)
}

// Devices returns the allocated devices in slot order.
func (c *InvocationContext) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Device, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.devices[n])
	}
	return out
}

func (c *InvocationContext) Device(name string) Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devices[name]
}

func (c *InvocationContext) AddBuildInfo(name string, build *BuildInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builds[name] = build
}

func (c *InvocationContext) BuildInfo(name string) *BuildInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builds[name]
}

// BuildInfos returns the builds in slot order, skipping slots without a build.
func (c *InvocationContext) BuildInfos() []*BuildInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*BuildInfo, 0, len(c.builds))
	for _, n := range c.names {
		if b, ok := c.builds[n]; ok {
			out = append(out, b)
		}
	}
	return out
}

// AddAttribute appends a value to a multi-valued attribute.
func (c *InvocationContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes[key] = append(c.attributes[key], value)
}

func (c *InvocationContext) Attribute(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.attributes[key])
}

// Attributes returns a copy of every attribute.
func (c *InvocationContext) Attributes() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.attributes))
	for k, v := range c.attributes {
		out[k] = slices.Clone(v)
	}
	return out
}

// Clone returns a context bound to the same devices, with cloned builds and
// copied attributes. The invocation ID is kept so shards report under the same
// invocation.
func (c *InvocationContext) Clone() *InvocationContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &InvocationContext{
		id:         c.id,
		configName: c.configName,
		testTag:    c.testTag,
		names:      slices.Clone(c.names),
		devices:    maps.Clone(c.devices),
		builds:     make(map[string]*BuildInfo, len(c.builds)),
		attributes: make(map[string][]string, len(c.attributes)),
	}
	for k, b := range c.builds {
		clone.builds[k] = b.Clone()
	}
	for k, v := range c.attributes {
		clone.attributes[k] = slices.Clone(v)
	}
	return clone
}
