package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"navcog-poi/config"
	"navcog-poi/db"
	"navcog-poi/model"
	"navcog-poi/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [139.7000, 35.6000]},
     "properties": {"id": "gate", "category": "entrance", "floor": 1}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [139.8000, 35.7000]},
     "properties": {"id": "far-away"}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[139.7, 35.6], [139.8, 35.7]]},
     "properties": {"from": "gate", "to": "far-away"}}
  ]
}`

func writeFixture(t *testing.T) (cfgPath string) {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "pois.geojson")
	require.NoError(t, os.WriteFile(data, []byte(sampleGeoJSON), 0o644))

	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := "log:\n  level: error\nsources:\n  - kind: file\n    path: " + data + "\n    radius: 500\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func TestLoadOnceEncodesNearbyPOIs(t *testing.T) {
	cfgPath := writeFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, loadOnce(ctx, cfgPath, model.NewLocation(35.6, 139.7), &out))

	ds, err := source.Decode(out.Bytes())
	require.NoError(t, err)
	require.Len(t, ds.POIs, 1)
	assert.Equal(t, "gate", ds.POIs[0].ID)
	assert.True(t, ds.POIs[0].Location.HasFloor)
}

func TestLoadOnceRejectsMissingSource(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))

	err := loadOnce(context.Background(), cfgPath, model.NewLocation(0, 0), &bytes.Buffer{})
	assert.ErrorIs(t, err, config.ErrNoSource)
}

func TestBuildSource(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	single, err := buildSource(ctx, config.Config{Sources: []config.SourceConfig{
		{Kind: config.SourceFile, Path: "a.geojson"},
	}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &source.File{}, single)

	multi, err := buildSource(ctx, config.Config{Sources: []config.SourceConfig{
		{Kind: config.SourceFile, Path: "a.geojson"},
		{Kind: config.SourceHTTP, URL: "http://localhost/pois", Timeout: time.Second},
	}}, logger)
	require.NoError(t, err)
	require.IsType(t, source.Multi{}, multi)
	assert.Len(t, multi.(source.Multi), 2)

	_, err = buildSource(ctx, config.Config{Sources: []config.SourceConfig{{Kind: "ftp"}}}, logger)
	assert.Error(t, err)
}

func TestFindStore(t *testing.T) {
	store := &db.Source{Radius: 100}
	assert.Same(t, store, findStore(store))
	assert.Same(t, store, findStore(source.Multi{&source.File{}, store}))
	assert.Nil(t, findStore(&source.File{}))
	assert.Nil(t, findStore(source.Multi{&source.File{}}))
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "load"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
