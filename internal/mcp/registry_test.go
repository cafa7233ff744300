package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainScope-Agent/internal/errors"
)

type stubSource struct {
	tools   []Tool
	listErr error
	calls   []string
	fail    map[string]error
	closed  bool
}

func (s *stubSource) ListTools(context.Context) ([]Tool, error) {
	return s.tools, s.listErr
}

func (s *stubSource) CallTool(_ context.Context, name string, args map[string]any) (any, error) {
	s.calls = append(s.calls, name+":"+argChain(args))
	if err := s.fail[name]; err != nil {
		return nil, err
	}
	return map[string]any{"tool": name}, nil
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

func argChain(args map[string]any) string {
	id, _ := args["chain_id"].(string)
	return id
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal("__unlock_blockchain_analysis__"))
	assert.True(t, IsInternal("__debug"))
	assert.True(t, IsInternal("UnlockVault"))
	assert.False(t, IsInternal("get_address_info"))
}

func TestRegistryRoutesAndHidesInternalTools(t *testing.T) {
	remote := &stubSource{tools: []Tool{{Name: "get_address_info"}, {Name: "__unlock_blockchain_analysis__"}}}
	local := &stubSource{tools: []Tool{{Name: "get_address_info"}, {Name: "get_native_balance"}}}
	r := NewRegistry(remote, nil, local)
	require.NoError(t, r.Refresh(context.Background()))

	assert.Len(t, r.Tools(), 3)
	public := r.PublicTools()
	require.Len(t, public, 2)
	assert.Equal(t, "get_address_info", public[0].Name)
	assert.Equal(t, "get_native_balance", public[1].Name)

	_, err := r.Call(context.Background(), "get_address_info", map[string]any{"chain_id": "1"})
	require.NoError(t, err)
	_, err = r.Call(context.Background(), "get_native_balance", map[string]any{"chain_id": "10"})
	require.NoError(t, err)
	assert.Equal(t, []string{"get_address_info:1"}, remote.calls)
	assert.Equal(t, []string{"get_native_balance:10"}, local.calls)

	_, err = r.Call(context.Background(), "missing_tool", nil)
	assert.Equal(t, xerrors.CodeToolNotFound, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), `Tool "missing_tool" not found`)

	require.NoError(t, r.Close())
	assert.True(t, remote.closed)
	assert.True(t, local.closed)
}

func TestRegistryRefreshFailures(t *testing.T) {
	broken := &stubSource{listErr: errors.New("connection refused")}
	r := NewRegistry(broken)
	err := r.Refresh(context.Background())
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))

	healthy := &stubSource{tools: []Tool{{Name: "get_address_info"}}}
	r = NewRegistry(broken, healthy)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Len(t, r.Tools(), 1)
}

func TestRegistryUnlock(t *testing.T) {
	source := &stubSource{
		tools: []Tool{{Name: "__unlock_blockchain_analysis__"}},
		fail:  map[string]error{},
	}
	r := NewRegistry(source)
	require.NoError(t, r.Refresh(context.Background()))

	unlocked := r.Unlock(context.Background(), []string{"1", "10", "42161"}, 0)
	assert.Equal(t, 3, unlocked)
	assert.Equal(t, []string{
		"__unlock_blockchain_analysis__:1",
		"__unlock_blockchain_analysis__:10",
		"__unlock_blockchain_analysis__:42161",
	}, source.calls)

	without := NewRegistry(&stubSource{tools: []Tool{{Name: "get_address_info"}}})
	require.NoError(t, without.Refresh(context.Background()))
	assert.Zero(t, without.Unlock(context.Background(), []string{"1"}, 0))
}
