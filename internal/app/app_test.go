package app

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/bili-comment/internal/config"
)

func TestSetupLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	SetupLogger("prod", &buf).Info("started", "port", 8080)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "started", line["msg"])
	require.Equal(t, float64(8080), line["port"])

	buf.Reset()
	SetupLogger("prod", &buf).Debug("hidden")
	require.Empty(t, buf.String())

	buf.Reset()
	SetupLogger("local", &buf).Debug("shown")
	require.Contains(t, buf.String(), "msg=shown")
}

func TestNewBackend_SQLite(t *testing.T) {
	cfg := &config.Config{
		StorageType: "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "backend.db"),
	}
	reg := prometheus.NewRegistry()

	backend, err := NewBackend(context.Background(), cfg, reg, SetupLogger("prod", &bytes.Buffer{}))
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	tpl, err := backend.Gateway.CreateTemplate(ctx, "hello", "first!")
	require.NoError(t, err)

	stored, err := backend.Storage.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	require.Equal(t, "first!", stored.Content)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
