package device

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

var ErrNoDeviceAvailable = errors.New("no device matches the requirements")

// Matcher selects devices. Device requirements from a configuration satisfy
// it.
type Matcher interface {
	Matches(ctx context.Context, device types.Device) bool
}

// FreeState tells the pool what happened to a device while it was allocated.
type FreeState int

const (
	FreeAvailable FreeState = iota
	FreeUnavailable
)

// Pool hands out devices to invocations. Devices freed as unavailable are
// quarantined and never allocated again.
type Pool struct {
	mu          sync.Mutex
	log         log.Logger
	devices     []types.Device
	allocated   map[string]bool
	quarantined map[string]bool
}

func NewPool(logger log.Logger, devices ...types.Device) *Pool {
	if logger == nil {
		logger = log.New()
	}
	return &Pool{
		log:         logger,
		devices:     slices.Clone(devices),
		allocated:   make(map[string]bool),
		quarantined: make(map[string]bool),
	}
}

// Allocate returns the first free device accepted by matcher. A nil matcher
// accepts every device.
func (p *Pool) Allocate(ctx context.Context, matcher Matcher) (types.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.devices {
		serial := d.Serial()
		if p.allocated[serial] || p.quarantined[serial] {
			continue
		}
		if matcher != nil && !matcher.Matches(ctx, d) {
			continue
		}
		p.allocated[serial] = true
		p.log.Debug("Allocated device", "serial", serial)
		return d, nil
	}
	return nil, ErrNoDeviceAvailable
}

func (p *Pool) Free(device types.Device, state FreeState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	serial := device.Serial()
	delete(p.allocated, serial)
	if state == FreeUnavailable {
		p.quarantined[serial] = true
		p.log.Warn("Device freed as unavailable", "serial", serial)
	}
}

// Available returns the number of devices that can currently be allocated.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, d := range p.devices {
		if !p.allocated[d.Serial()] && !p.quarantined[d.Serial()] {
			n++
		}
	}
	return n
}
