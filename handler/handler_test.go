package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"navcog-poi/algo"
	"navcog-poi/model"
	"navcog-poi/registry"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	reg    *registry.Registry
	api    *API
	auth   *Auth
	hub    *Hub
	router *gin.Engine
	token  string
}

func newTestServer(t *testing.T, src registry.DataSource) *testServer {
	t.Helper()
	hub := NewHub(16)
	reg := registry.New(src, registry.WithObserver(hub))
	t.Cleanup(reg.Close)

	auth := NewAuth("test-secret", time.Hour)
	u, err := auth.AddUser("admin", "secret123", "")
	require.NoError(t, err)
	token, err := auth.IssueToken(u)
	require.NoError(t, err)

	api := NewAPI(reg, nil)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	return &testServer{
		reg:    reg,
		api:    api,
		auth:   auth,
		hub:    hub,
		router: NewRouter(api, auth, hub, metrics),
		token:  token,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func waitEvent(t *testing.T, events <-chan Event, typ string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return Event{}
		}
	}
}

func TestPingAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/ping", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")

	w = s.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())

	w = s.do(t, http.MethodOptions, "/api/pois", nil, false)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/register", gin.H{"username": "alice", "password": "password1"}, false)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/register", gin.H{"username": "alice", "password": "password2"}, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/register", gin.H{"username": "bob", "password": "123"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/login", gin.H{"username": "alice", "password": "wrong"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/login", gin.H{"username": "alice", "password": "password1"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[LoginResponse](t, w)
	assert.Equal(t, "alice", resp.Username)
	assert.NotEmpty(t, resp.Token)

	// the issued token opens the protected routes
	s.token = resp.Token
	w = s.do(t, http.MethodPut, "/api/center", gin.H{"lat": 35.6, "lng": 139.7}, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/pois", gin.H{"lat": 1, "lng": 1}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.token = "garbage"
	w = s.do(t, http.MethodDelete, "/api/pois/x", nil, true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := NewAuth("other-secret", time.Hour)
	u, err := other.AddUser("mallory", "secret123", "")
	require.NoError(t, err)
	s.token, err = other.IssueToken(u)
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/api/load", nil, true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPOILifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	events, cancel := s.hub.Subscribe()
	defer cancel()

	w := s.do(t, http.MethodPost, "/api/pois", gin.H{
		"lat": 35.6, "lng": 139.7, "floor": 1,
		"attributes": gin.H{"id": "elev-1", "facility_id": "fac-elev", "category": "elevator", "name": "Elevator"},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[struct {
		POI    model.POI `json:"poi"`
		NodeID string    `json:"node_id"`
	}](t, w)
	assert.Equal(t, "elev-1", created.POI.ID)
	assert.Equal(t, "elev-1", created.NodeID)
	waitEvent(t, events, EventPOIChanged)

	w = s.do(t, http.MethodGet, "/api/pois/elev-1", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/facilities/fac-elev/node", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	node := decode[NodeResponse](t, w)
	assert.Equal(t, "elev-1", node.ID)
	assert.Equal(t, "elevator", node.Type)
	assert.True(t, node.Location.HasFloor)
	require.Len(t, node.Facilities, 1)
	assert.Equal(t, "fac-elev", node.Facilities[0].ID)

	w = s.do(t, http.MethodGet, "/api/nodes/elev-1", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/nodes/nearest?lat=35.6001&lng=139.7&floor=1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "elev-1", decode[NodeResponse](t, w).ID)

	w = s.do(t, http.MethodGet, "/api/nodes/nearest?lat=35.6&lng=139.7&floor=3", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/nodes/search?q=ELEV", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[struct {
		Count int `json:"count"`
	}](t, w).Count)

	w = s.do(t, http.MethodGet, "/api/nodes/search", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/nodes/nearest?lat=abc", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/pois/elev-1", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// removing again is a no-op
	w = s.do(t, http.MethodDelete, "/api/pois/elev-1", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	for _, path := range []string{"/api/pois/elev-1", "/api/nodes/elev-1", "/api/facilities/fac-elev/node"} {
		w = s.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestAddPOIGeneratesID(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/pois", gin.H{"lat": 1, "lng": 2}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[struct {
		POI model.POI `json:"poi"`
	}](t, w)
	assert.Len(t, created.POI.ID, 36)
	assert.Equal(t, created.POI.ID, created.POI.Attributes["id"])

	w = s.do(t, http.MethodGet, "/api/pois", nil, false)
	list := decode[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, 1, list.Count)
}

func TestAddPOIRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/pois", gin.H{"lat": 200, "lng": 2}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/pois", gin.H{"lng": 2}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, s.reg.POIs())
}

func TestRequestInfoIsForwarded(t *testing.T) {
	s := newTestServer(t, nil)
	s.reg.AddPOI(map[string]any{"id": "shop"}, model.NewLocation(1, 1), nil)
	events, cancel := s.hub.Subscribe()
	defer cancel()

	w := s.do(t, http.MethodPost, "/api/pois/shop/info", gin.H{"type": "hours", "lat": 1, "lng": 1.0001}, false)
	require.Equal(t, http.StatusAccepted, w.Code)

	ev := waitEvent(t, events, EventInfoRequest)
	info, ok := ev.Data.(InfoRequest)
	require.True(t, ok)
	assert.Equal(t, "hours", info.InfoType)
	assert.Equal(t, "shop", info.POI.ID)
	assert.Equal(t, 1.0001, info.At.Lng)

	w = s.do(t, http.MethodPost, "/api/pois/missing/info", gin.H{"type": "hours", "lat": 1, "lng": 1}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCenterAndLoad(t *testing.T) {
	src := registry.DataSourceFunc(func(ctx context.Context, center model.Location) ([]model.POI, error) {
		p, err := model.NewPOI(map[string]any{"id": "near"}, model.NewLocation(center.Lat, center.Lng))
		return []model.POI{p}, err
	})
	s := newTestServer(t, src)
	events, cancel := s.hub.Subscribe()
	defer cancel()

	w := s.do(t, http.MethodGet, "/api/center", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/center", gin.H{"lat": 35.6, "lng": 139.7, "floor": 2}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/center", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	center := decode[model.Location](t, w)
	assert.Equal(t, 35.6, center.Lat)
	assert.True(t, center.HasFloor)

	w = s.do(t, http.MethodPost, "/api/load", nil, true)
	assert.Equal(t, http.StatusAccepted, w.Code)

	waitEvent(t, events, EventLoadStarted)
	ev := waitEvent(t, events, EventPOIsLoaded)
	data, ok := ev.Data.(gin.H)
	require.True(t, ok)
	assert.Equal(t, 1, data["count"])

	_, ok = s.reg.POI("near")
	assert.True(t, ok)

	w = s.do(t, http.MethodDelete, "/api/load", nil, true)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestFindPath(t *testing.T) {
	s := newTestServer(t, nil)
	add := func(id string, lng float64, attrs map[string]any) {
		a := map[string]any{"id": id, "name": id}
		for k, v := range attrs {
			a[k] = v
		}
		s.reg.AddPOI(a, model.NewLocation(35.6, lng), nil)
	}
	add("a", 139.7000, map[string]any{"facility_id": "gate"})
	add("b", 139.7005, nil)
	add("c", 139.7010, map[string]any{"facility_id": "exit"})

	g := algo.NewGraph(s.reg)
	g.AddEdges([]model.Edge{
		{From: "a", To: "b", Modes: []string{"walk"}},
		{From: "b", To: "c", Modes: []string{"stairs"}},
	})
	s.api.SetGraph(g)

	w := s.do(t, http.MethodPost, "/api/path/find", PathRequest{StartID: "a", EndID: "c"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[PathResponse](t, w)
	require.True(t, resp.Found)
	require.Len(t, resp.Path, 3)
	assert.Equal(t, "c", resp.Path[2].Name)
	assert.Greater(t, resp.Distance, 0.0)

	w = s.do(t, http.MethodPost, "/api/path/find", PathRequest{StartFacility: "gate", EndFacility: "exit", Avoid: []string{"stairs"}}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[PathResponse](t, w).Found)

	lat, lng := 35.6, 139.70101
	w = s.do(t, http.MethodPost, "/api/path/find", PathRequest{
		StartID: "a",
		End:     &LocationRequest{Lat: &lat, Lng: &lng},
		Modes:   []string{"walk", "stairs"},
	}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[PathResponse](t, w).Found)

	w = s.do(t, http.MethodPost, "/api/path/find", PathRequest{StartID: "a", EndID: "zzz"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/path/find", PathRequest{StartID: "a"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/path/find", PathRequest{StartID: "a", EndID: "c", Modes: []string{"teleport"}}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub(1)
	events, cancel := h.Subscribe()

	h.DidStartLoading()
	h.DidStartLoading() // buffer full, dropped
	h.DidPOIChange(registry.Change{Kind: registry.ChangeAdded})

	ev := <-events
	assert.Equal(t, EventLoadStarted, ev.Type)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	default:
	}

	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok)

	// no subscribers left
	h.DidPOIsLoaded(nil)
}

type memStore struct {
	saved   map[string]model.POI
	deleted []string
	err     error
}

func (m *memStore) SavePOI(_ context.Context, p model.POI) error {
	if m.err != nil {
		return m.err
	}
	m.saved[p.ID] = p
	return nil
}

func (m *memStore) DeletePOI(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func TestPOIChangesAreWrittenThrough(t *testing.T) {
	s := newTestServer(t, nil)
	store := &memStore{saved: map[string]model.POI{}}
	s.api.Store = store

	w := s.do(t, http.MethodPost, "/api/pois", gin.H{"lat": 1, "lng": 2, "attributes": gin.H{"id": "kiosk"}}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, store.saved, "kiosk")
	assert.Equal(t, 2.0, store.saved["kiosk"].Location.Lng)

	w = s.do(t, http.MethodDelete, "/api/pois/kiosk", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"kiosk"}, store.deleted)
	_, ok := s.reg.POI("kiosk")
	assert.False(t, ok)
}

func TestStoreFailureLeavesRegistryUnchanged(t *testing.T) {
	s := newTestServer(t, nil)
	s.reg.AddPOI(map[string]any{"id": "kept"}, model.NewLocation(1, 1), nil)
	s.api.Store = &memStore{saved: map[string]model.POI{}, err: assert.AnError}

	w := s.do(t, http.MethodPost, "/api/pois", gin.H{"lat": 1, "lng": 2, "attributes": gin.H{"id": "new"}}, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	_, ok := s.reg.POI("new")
	assert.False(t, ok)

	w = s.do(t, http.MethodDelete, "/api/pois/kept", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	_, ok = s.reg.POI("kept")
	assert.True(t, ok)
}
