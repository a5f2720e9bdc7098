package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cardscan/internal/catalog"
	"cardscan/internal/config"
	"cardscan/internal/corrections"
	"cardscan/internal/identify"
	"cardscan/internal/imagehash"
	"cardscan/internal/logging"
	"cardscan/internal/namecache"
	"cardscan/internal/patterns"
	"cardscan/internal/scanstats"
	"cardscan/internal/search"
	"cardscan/internal/services"
	"cardscan/internal/testsupport"
)

type testEnv struct {
	cfg      *config.Config
	server   *Server
	http     *httptest.Server
	catalog  *catalog.Store
	patterns *patterns.Store
	stats    *scanstats.Log
}

type envOption func(*config.Config, *Deps)

func withToken(token string) envOption {
	return func(cfg *config.Config, _ *Deps) { cfg.Paths.APIToken = token }
}

func withSource(source catalog.Source) envOption {
	return func(_ *config.Config, deps *Deps) { deps.Source = source }
}

func withSearch(s Searcher) envOption {
	return func(_ *config.Config, deps *Deps) { deps.Search = s }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenLearningDB(t, cfg)
	store := testsupport.MustOpenCatalog(t, cfg)

	patternStore := patterns.New(db, patterns.Options{}, logging.NewNop())
	names := namecache.New(db, namecache.Options{}, logging.NewNop())
	stats := scanstats.New(db, nil)
	var mu sync.Mutex
	seq := 0
	engine, err := identify.NewEngine(identify.Deps{
		Matcher:     catalog.NewMatcher(store, 0, logging.NewNop()),
		Patterns:    patternStore,
		Names:       names,
		Corrections: corrections.New(db, patternStore, nil, logging.NewNop()),
		Stats:       stats,
	}, identify.Options{NewID: func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("s%d", seq)
	}}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	deps := Deps{
		Engine:  engine,
		Catalog: store,
		Builder: catalog.NewBuilder(store, catalog.NewHTTPFetcher(2*time.Second, "cardscan-test"), cfg.BuildLockPath(), logging.NewNop()),
		Source:  catalog.StaticSource{},
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}
	srv, err := New(cfg, deps, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.hub.close()
		if srv.builds != nil {
			srv.builds.cancel()
			srv.builds.wait()
		}
		ts.Close()
	})
	return &testEnv{cfg: cfg, server: srv, http: ts, catalog: store, patterns: patternStore, stats: stats}
}

func (e *testEnv) identify(t *testing.T, text string, img []byte) (*http.Response, identify.View) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if text != "" {
		if err := mw.WriteField("text", text); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if img != nil {
		part, err := mw.CreateFormFile("image", "card.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = part.Write(img)
	}
	_ = mw.Close()
	req, _ := http.NewRequest(http.MethodPost, e.http.URL+"/api/identify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST identify: %v", err)
	}
	defer resp.Body.Close()
	var view identify.View
	if resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
			t.Fatalf("decode view: %v", err)
		}
	}
	return resp, view
}

func (e *testEnv) post(t *testing.T, path string, payload any) (int, []byte) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	resp, err := http.Post(e.http.URL+path, "application/json", &body)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func (e *testEnv) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.get(t, "/api/health")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var resp healthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Sessions != 0 || resp.BuildRunning {
		t.Fatalf("unexpected health %+v", resp)
	}
}

func TestIdentifyImageMatchAndConfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := testsupport.Gradient(60, 84, 1)
	fp, err := imagehash.Compute(img)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if err := env.catalog.Upsert(ctx, catalog.Entry{CardID: "p1", Name: "Pikachu", SetName: "Base", SetCode: "base1", Fingerprint: fp, Downloaded: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	data := testsupport.PNG(t, img)

	resp, view := env.identify(t, "", data)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("identify status = %d", resp.StatusCode)
	}
	if view.State != identify.StatePending || !view.HasImage {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Hash == nil || view.Hash.CardID != "p1" || view.Hash.Distance != 0 || view.Hash.Confidence != 100 {
		t.Fatalf("unexpected hash signal %+v", view.Hash)
	}
	if view.Recommendation.Source != identify.SourceImageHash || view.Recommendation.Name != "Pikachu" {
		t.Fatalf("unexpected recommendation %+v", view.Recommendation)
	}

	status, body := env.get(t, "/api/sessions/"+view.ID+"/image")
	if status != http.StatusOK || !bytes.Equal(body, data) {
		t.Fatalf("image status = %d, %d bytes", status, len(body))
	}

	status, body = env.post(t, "/api/sessions/"+view.ID+"/confirm", nil)
	if status != http.StatusOK {
		t.Fatalf("confirm status = %d body=%s", status, body)
	}
	var confirmed identify.View
	if err := json.Unmarshal(body, &confirmed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if confirmed.State != identify.StateConfirmed || confirmed.Resolution == nil {
		t.Fatalf("unexpected confirmed view %+v", confirmed)
	}
	if confirmed.Resolution.CardID != "p1" || confirmed.Resolution.Method != scanstats.KindImageHash {
		t.Fatalf("unexpected resolution %+v", confirmed.Resolution)
	}

	status, _ = env.post(t, "/api/sessions/"+view.ID+"/confirm", nil)
	if status != http.StatusConflict {
		t.Fatalf("second confirm status = %d, want 409", status)
	}

	byKind, err := env.stats.ByKind(ctx)
	if err != nil {
		t.Fatalf("ByKind: %v", err)
	}
	if byKind[scanstats.KindImageHash] != 1 {
		t.Fatalf("stats by kind = %v", byKind)
	}
}

func TestIdentifyTextOnlyAndCorrect(t *testing.T) {
	env := newTestEnv(t)
	resp, view := env.identify(t, "Xyz123", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("identify status = %d", resp.StatusCode)
	}
	if view.Recommendation.Source != identify.SourceNone {
		t.Fatalf("expected no reliable detection, got %+v", view.Recommendation)
	}
	status, _ := env.get(t, "/api/sessions/"+view.ID+"/image")
	if status != http.StatusNotFound {
		t.Fatalf("image status = %d, want 404", status)
	}

	status, _ = env.post(t, "/api/sessions/"+view.ID+"/confirm", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("confirm without a name status = %d, want 400", status)
	}

	status, body := env.post(t, "/api/sessions/"+view.ID+"/correct", correctRequest{Name: "Charizard", CardID: "base1-4"})
	if status != http.StatusOK {
		t.Fatalf("correct status = %d body=%s", status, body)
	}
	res, ok := env.patterns.Lookup(context.Background(), "Xyz123")
	if !ok || res.Name != "Charizard" || res.Confidence != 1 {
		t.Fatalf("correction not learned: %+v ok=%v", res, ok)
	}

	status, _ = env.post(t, "/api/sessions/"+view.ID+"/retry", nil)
	if status != http.StatusConflict {
		t.Fatalf("retry after correct status = %d, want 409", status)
	}
}

func TestIdentifyRequiresInput(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.identify(t, "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionRoutes(t *testing.T) {
	env := newTestEnv(t)
	_, first := env.identify(t, "Xyz123", nil)
	_, second := env.identify(t, "Abc999", nil)

	status, body := env.get(t, "/api/sessions/"+first.ID)
	if status != http.StatusOK || !strings.Contains(string(body), `"raw_text":"Xyz123"`) {
		t.Fatalf("get session status = %d body=%s", status, body)
	}
	if status, _ := env.get(t, "/api/sessions/missing"); status != http.StatusNotFound {
		t.Fatalf("missing session status = %d", status)
	}

	status, body = env.post(t, "/api/sessions/"+first.ID+"/retry", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"state":"retried"`) {
		t.Fatalf("retry status = %d body=%s", status, body)
	}
	status, body = env.post(t, "/api/sessions/"+second.ID+"/cancel", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"state":"cancelled"`) {
		t.Fatalf("cancel status = %d body=%s", status, body)
	}

	status, body = env.get(t, "/api/sessions")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list struct {
		Sessions []identify.View `json:"sessions"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list.Sessions))
	}
}

func TestConfirmRejectsUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	_, view := env.identify(t, "Xyz123", nil)
	status, _ := env.post(t, "/api/sessions/"+view.ID+"/confirm", confirmRequest{Name: "Pikachu", Method: "telepathy"})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	status, _ = env.post(t, "/api/sessions/"+view.ID+"/confirm", confirmRequest{Name: "Pikachu", Method: "correction"})
	if status != http.StatusBadRequest {
		t.Fatalf("correction method status = %d, want 400", status)
	}
	status, body := env.post(t, "/api/sessions/"+view.ID+"/confirm", confirmRequest{Name: "Pikachu", Method: "manual"})
	if status != http.StatusOK || !strings.Contains(string(body), `"method":"manual"`) {
		t.Fatalf("manual confirm status = %d body=%s", status, body)
	}
}

func TestAuthToken(t *testing.T) {
	env := newTestEnv(t, withToken("secret"))

	if status, _ := env.get(t, "/api/health"); status != http.StatusOK {
		t.Fatalf("health should not require auth, status = %d", status)
	}
	if status, _ := env.get(t, "/api/stats"); status != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", status)
	}

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/api/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d, want 401", resp.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", resp.StatusCode)
	}
}

func TestStatsAndExport(t *testing.T) {
	env := newTestEnv(t)
	_, view := env.identify(t, "Xyz123", nil)
	env.post(t, "/api/sessions/"+view.ID+"/confirm", confirmRequest{Name: "Mew", Method: "manual"})

	status, body := env.get(t, "/api/stats")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var stats identify.Statistics
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalScans != 1 || stats.SuccessfulScans != 1 || stats.SuccessRate != 100 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	status, body = env.get(t, "/api/stats/export")
	if status != http.StatusOK || !strings.Contains(string(body), "Total Scans: 1") {
		t.Fatalf("export status = %d body=%s", status, body)
	}
}

// blockingSource holds References until release is closed.
type blockingSource struct {
	refs    catalog.StaticSource
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) References(ctx context.Context, limit int) ([]catalog.Reference, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.refs.References(ctx, limit)
}

func TestCatalogBuildLifecycle(t *testing.T) {
	images := testsupport.ImageServer(t, map[string]image.Image{
		"p1.png": testsupport.Gradient(60, 84, 1),
		"c1.png": testsupport.Gradient(60, 84, 2),
	})
	source := &blockingSource{
		refs: catalog.StaticSource{
			{ID: "p1", Name: "Pikachu", SetCode: "base1", ImageURL: images.URL + "/p1.png"},
			{ID: "c1", Name: "Charizard", SetCode: "base1", ImageURL: images.URL + "/c1.png"},
		},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newTestEnv(t, withSource(source))

	status, body := env.post(t, "/api/catalog/build", buildRequest{})
	if status != http.StatusAccepted {
		t.Fatalf("build status = %d body=%s", status, body)
	}
	<-source.started
	status, _ = env.post(t, "/api/catalog/build", buildRequest{})
	if status != http.StatusConflict {
		t.Fatalf("second build status = %d, want 409", status)
	}
	close(source.release)
	env.server.builds.wait()

	status, body = env.get(t, "/api/catalog/build")
	if status != http.StatusOK {
		t.Fatalf("build status = %d", status)
	}
	var build BuildStatus
	if err := json.Unmarshal(body, &build); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if build.Running || build.Last == nil || !build.Last.Done || build.Last.Result == nil || build.Last.Result.Added != 2 {
		t.Fatalf("unexpected build status %+v", build)
	}

	status, body = env.get(t, "/api/catalog/stats")
	if status != http.StatusOK || !strings.Contains(string(body), `"total":2`) {
		t.Fatalf("catalog stats status = %d body=%s", status, body)
	}

	// A late subscriber receives the final event.
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/catalog/build/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var event struct {
		Type string           `json:"type"`
		Data catalog.Progress `json:"data"`
	}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if event.Type != eventBuildProgress || !event.Data.Done || event.Data.Result.Added != 2 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestBuildRejectsNegativeLimit(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.post(t, "/api/catalog/build", buildRequest{Limit: -1})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

type fakeSearcher struct {
	result search.Result
	err    error
	calls  []string
}

func (f *fakeSearcher) Search(_ context.Context, name, setName string) (search.Result, error) {
	f.calls = append(f.calls, name+"|"+setName)
	return f.result, f.err
}

func TestSearchRoute(t *testing.T) {
	searcher := &fakeSearcher{result: search.Result{Query: "Pikachu", Mode: search.ModeExact, Cached: 1}}
	env := newTestEnv(t, withSearch(searcher))

	status, body := env.get(t, "/api/search?q=Pikachu&set=Base")
	if status != http.StatusOK || !strings.Contains(string(body), `"mode":"exact"`) {
		t.Fatalf("search status = %d body=%s", status, body)
	}
	if len(searcher.calls) != 1 || searcher.calls[0] != "Pikachu|Base" {
		t.Fatalf("calls = %v", searcher.calls)
	}
	if status, _ := env.get(t, "/api/search"); status != http.StatusBadRequest {
		t.Fatalf("empty query status = %d, want 400", status)
	}

	searcher.err = services.Wrap(services.ErrExternalService, "tcgapi", "search", "upstream down", nil)
	if status, _ := env.get(t, "/api/search?q=Mew"); status != http.StatusBadGateway {
		t.Fatalf("upstream failure status = %d, want 502", status)
	}
}

func TestSearchUnavailable(t *testing.T) {
	env := newTestEnv(t)
	if status, _ := env.get(t, "/api/search?q=Mew"); status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
}

func TestNewRequiresEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(cfg, Deps{}, nil); err == nil {
		t.Fatal("expected configuration error")
	}
	if _, err := New(nil, Deps{}, nil); err == nil {
		t.Fatal("expected error without config")
	}
}
