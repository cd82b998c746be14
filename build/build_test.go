package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

func TestStubProvider(t *testing.T) {
	ctx := context.Background()
	p := NewStubProvider()
	p.BuildID = "123"
	p.Branch = "main"

	b, err := p.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "123", b.BuildID)
	assert.Equal(t, "main", b.Branch)
	assert.Equal(t, "stub", b.TestTag)

	p.BuildNotTested(b)
	p.CleanUp(b)
	assert.Len(t, p.NotTested(), 1)
	assert.Len(t, p.Cleaned(), 1)

	p.NoBuild = true
	b, err = p.Build(ctx)
	require.NoError(t, err)
	assert.Nil(t, b)

	p.NoBuild = false
	p.Fail = true
	_, err = p.Build(ctx)
	require.Error(t, err)
	assert.True(t, types.IsBuildRetrievalError(err))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "op-geth"), []byte("bin"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	p := NewLocalProvider()
	p.BuildDir = dir
	b, err := p.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", b.BuildID)
	assert.Equal(t, map[string]string{"op-geth": filepath.Join(dir, "op-geth")}, b.Files)
	assert.Equal(t, dir, b.Attributes["build-dir"])

	p.BuildDir = filepath.Join(dir, "missing")
	_, err = p.Build(ctx)
	assert.True(t, types.IsBuildRetrievalError(err))
}

func TestExistingProvider(t *testing.T) {
	origin := NewStubProvider()
	build := &types.BuildInfo{BuildID: "7"}
	p := NewExistingProvider(build, origin)

	got, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Same(t, build, got)

	p.BuildNotTested(got)
	p.CleanUp(got)
	assert.Equal(t, []*types.BuildInfo{build}, origin.NotTested())
	assert.Equal(t, []*types.BuildInfo{build}, origin.Cleaned())

	require.NotPanics(t, func() { NewExistingProvider(build, nil).CleanUp(build) })
}
