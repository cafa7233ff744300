package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainScope-Agent/internal/agent"
	"ChainScope-Agent/internal/config"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/session"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["ask"])
	assert.True(t, names["tools"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, 15*time.Minute, sweepInterval(30*time.Minute))
	assert.Equal(t, time.Minute, sweepInterval(10*time.Second))
}

func TestBuildJobs(t *testing.T) {
	sessions := session.NewManager(agent.New(nil, nil, nil))

	cfg := &config.Config{}
	cfg.Jobs.Queue = "memory"
	cfg.Jobs.Workers = 1
	svc, processor, err := buildJobs(context.Background(), cfg, sessions)
	require.NoError(t, err)
	require.NotNil(t, processor)
	defer svc.Close()

	cfg.Jobs.Queue = "kafka"
	_, _, err = buildJobs(context.Background(), cfg, sessions)
	assert.Equal(t, xerrors.CodeConfigInvalid, xerrors.CodeOf(err))
}
