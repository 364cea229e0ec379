package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"navcog-poi/model"
	"navcog-poi/registry"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "A",
     "geometry": {"type": "Point", "coordinates": [-79.941, 40.441]},
     "properties": {"category": "entrance", "name": "Main entrance", "floor": 1}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [-79.942, 40.442]},
     "properties": {"id": "B", "category": "elevator", "node_id": "n-b"}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [-80.5, 41.0]},
     "properties": {"id": "far"}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[-79.944, 40.444], [-79.942, 40.444], [-79.942, 40.446], [-79.944, 40.446], [-79.944, 40.444]]]},
     "properties": {"id": "room"}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [-79.9, 40.4]},
     "properties": {"name": "no id"}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[-79.941, 40.441], [-79.942, 40.442]]},
     "properties": {"from": "A", "to": "n-b", "modes": ["walk", "stairs"]}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[-79.941, 40.441], [-79.942, 40.442]]},
     "properties": {"from": "A", "to": "n-b", "dist": 12.5}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[-79.941, 40.441], [-79.942, 40.442]]},
     "properties": {"from": "A"}}
  ]
}`

var center = model.NewLocation(40.44, -79.94)

func poiIDs(pois []model.POI) []string {
	out := make([]string, 0, len(pois))
	for _, p := range pois {
		out = append(out, p.ID)
	}
	return out
}

func TestDecode(t *testing.T) {
	ds, err := Decode([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "far", "room"}, poiIDs(ds.POIs))
	assert.Equal(t, 2, ds.Skipped)

	a := ds.POIs[0]
	assert.Equal(t, 40.441, a.Location.Lat)
	assert.Equal(t, -79.941, a.Location.Lng)
	assert.True(t, a.Location.HasFloor)
	assert.Equal(t, 1.0, a.Location.Floor)
	assert.Equal(t, "Main entrance", a.String(model.KeyName))

	room := ds.POIs[3]
	assert.InDelta(t, 40.445, room.Location.Lat, 1e-9)
	assert.InDelta(t, -79.943, room.Location.Lng, 1e-9)

	require.Len(t, ds.Edges, 2)
	assert.Equal(t, model.ModeWalk|model.ModeStairs, ds.Edges[0].ModeMask)
	assert.Greater(t, ds.Edges[0].Dist, 100.0)
	assert.Equal(t, []string{"walk"}, ds.Edges[1].Modes)
	assert.Equal(t, 12.5, ds.Edges[1].Dist)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestEncodeRoundTripKeepsIdentity(t *testing.T) {
	p, err := model.NewPOI(map[string]any{"id": "A", "name": "x"}, center.WithFloor(3))
	require.NoError(t, err)

	data, err := Encode([]model.POI{p})
	require.NoError(t, err)
	ds, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, ds.POIs, 1)
	assert.Equal(t, "A", ds.POIs[0].ID)
	assert.Equal(t, 3.0, ds.POIs[0].Location.Floor)
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pois.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestFileSource(t *testing.T) {
	f := &File{Path: writeSample(t), Radius: 1000}

	pois, err := f.FetchPOIs(context.Background(), center)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "room"}, poiIDs(pois))

	edges, err := f.FetchEdges(context.Background())
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	all, err := (&File{Path: f.Path}).FetchPOIs(context.Background(), center)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestFileSourceMissingFile(t *testing.T) {
	f := &File{Path: filepath.Join(t.TempDir(), "missing.geojson")}
	_, err := f.FetchPOIs(context.Background(), center)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileSourceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&File{Path: writeSample(t)}).FetchPOIs(ctx, center)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPSource(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"lat":   r.URL.Query().Get("lat"),
			"lng":   r.URL.Query().Get("lng"),
			"dist":  r.URL.Query().Get("dist"),
			"floor": r.URL.Query().Get("floor"),
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	h := &HTTP{URL: srv.URL + "/pois", Radius: 500, Client: srv.Client()}
	pois, err := h.FetchPOIs(context.Background(), center.WithFloor(2))
	require.NoError(t, err)
	assert.Len(t, pois, 4)
	assert.Equal(t, map[string]string{"lat": "40.44", "lng": "-79.94", "dist": "500", "floor": "2"}, gotQuery)

	edges, err := h.FetchEdges(context.Background())
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, 0, 0).FetchPOIs(context.Background(), center)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

type fakeObjects struct {
	body []byte
	err  error
	in   *s3.GetObjectInput
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func TestS3Source(t *testing.T) {
	objects := &fakeObjects{body: []byte(sample)}
	src := &S3{Client: objects, Bucket: "maps", Key: "campus/pois.geojson", Radius: 1000}

	pois, err := src.FetchPOIs(context.Background(), center)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "room"}, poiIDs(pois))
	assert.Equal(t, "maps", *objects.in.Bucket)
	assert.Equal(t, "campus/pois.geojson", *objects.in.Key)

	edges, err := src.FetchEdges(context.Background())
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestS3SourceError(t *testing.T) {
	boom := errors.New("no such key")
	src := &S3{Client: &fakeObjects{err: boom}, Bucket: "b", Key: "k"}
	_, err := src.FetchPOIs(context.Background(), center)
	assert.ErrorIs(t, err, boom)
}

func TestNewS3RequiresBucketAndKey(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Bucket: "b"}, 0)
	assert.Error(t, err)
}

func fixed(ids ...string) registry.DataSource {
	return registry.DataSourceFunc(func(context.Context, model.Location) ([]model.POI, error) {
		out := make([]model.POI, 0, len(ids))
		for _, id := range ids {
			out = append(out, model.POI{ID: id, Location: center})
		}
		return out, nil
	})
}

func TestMultiConcatenatesInOrder(t *testing.T) {
	m := Multi{fixed("a1", "a2"), fixed(), fixed("c1")}
	pois, err := m.FetchPOIs(context.Background(), center)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "c1"}, poiIDs(pois))
}

func TestMultiFailsAsAWhole(t *testing.T) {
	boom := errors.New("boom")
	failing := registry.DataSourceFunc(func(context.Context, model.Location) ([]model.POI, error) {
		return nil, boom
	})
	pois, err := Multi{fixed("a"), failing}.FetchPOIs(context.Background(), center)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, pois)
}

func TestMultiEdges(t *testing.T) {
	m := Multi{fixed("a"), &File{Path: writeSample(t)}}
	edges, err := m.FetchEdges(context.Background())
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}
