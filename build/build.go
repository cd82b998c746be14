// Package build holds the build providers shipped with the harness.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// StubProvider returns a build described entirely by its options.
type StubProvider struct {
	BuildID string `option:"build-id"`
	Branch  string `option:"branch"`
	Flavor  string `option:"build-flavor"`
	TestTag string `option:"test-tag"`
	Fail    bool   `option:"fail"`
	NoBuild bool   `option:"no-build"`

	mu        sync.Mutex
	notTested []*types.BuildInfo
	cleaned   []*types.BuildInfo
}

var _ types.BuildProvider = (*StubProvider)(nil)

func NewStubProvider() *StubProvider {
	return &StubProvider{BuildID: "0", TestTag: "stub"}
}

func (p *StubProvider) Build(ctx context.Context) (*types.BuildInfo, error) {
	if p.NoBuild {
		return nil, nil
	}
	build := &types.BuildInfo{
		BuildID:     p.BuildID,
		Branch:      p.Branch,
		BuildFlavor: p.Flavor,
		TestTag:     p.TestTag,
	}
	if p.Fail {
		return nil, types.NewBuildRetrievalError(build, errors.New("stub build retrieval failure"))
	}
	return build, nil
}

func (p *StubProvider) BuildNotTested(build *types.BuildInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notTested = append(p.notTested, build)
}

func (p *StubProvider) CleanUp(build *types.BuildInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleaned = append(p.cleaned, build)
}

// NotTested returns the builds reported as not tested.
func (p *StubProvider) NotTested() []*types.BuildInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.BuildInfo(nil), p.notTested...)
}

// Cleaned returns the builds that were cleaned up.
func (p *StubProvider) Cleaned() []*types.BuildInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.BuildInfo(nil), p.cleaned...)
}

// LocalProvider serves the files of a host directory as a build. Each regular
// file becomes a build file keyed by its name.
type LocalProvider struct {
	BuildDir string `option:"build-dir,mandatory"`
	BuildID  string `option:"build-id"`
	Branch   string `option:"branch"`
	TestTag  string `option:"test-tag"`
}

var _ types.BuildProvider = (*LocalProvider)(nil)

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{BuildID: "local", TestTag: "local"}
}

func (p *LocalProvider) Build(ctx context.Context) (*types.BuildInfo, error) {
	build := &types.BuildInfo{
		BuildID: p.BuildID,
		Branch:  p.Branch,
		TestTag: p.TestTag,
		Files:   make(map[string]string),
	}
	entries, err := os.ReadDir(p.BuildDir)
	if err != nil {
		return nil, types.NewBuildRetrievalError(build, fmt.Errorf("failed to read build dir: %w", err))
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path, err := filepath.Abs(filepath.Join(p.BuildDir, e.Name()))
		if err != nil {
			return nil, types.NewBuildRetrievalError(build, err)
		}
		build.Files[e.Name()] = path
	}
	build.AddAttribute("build-dir", p.BuildDir)
	return build, nil
}

func (p *LocalProvider) BuildNotTested(build *types.BuildInfo) {}

// CleanUp leaves the directory in place; it belongs to the host.
func (p *LocalProvider) CleanUp(build *types.BuildInfo) {}

// ExistingProvider hands out a build that was already fetched, for shards and
// resumed invocations. Notifications go back to the provider that produced
// the build.
type ExistingProvider struct {
	build  *types.BuildInfo
	origin types.BuildProvider
}

var _ types.BuildProvider = (*ExistingProvider)(nil)

func NewExistingProvider(build *types.BuildInfo, origin types.BuildProvider) *ExistingProvider {
	return &ExistingProvider{build: build, origin: origin}
}

func (p *ExistingProvider) Build(ctx context.Context) (*types.BuildInfo, error) {
	return p.build, nil
}

func (p *ExistingProvider) BuildNotTested(build *types.BuildInfo) {
	if p.origin != nil {
		p.origin.BuildNotTested(build)
	}
}

func (p *ExistingProvider) CleanUp(build *types.BuildInfo) {
	if p.origin != nil {
		p.origin.CleanUp(build)
	}
}
