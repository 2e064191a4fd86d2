package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/config"
	"github.com/raaihank/frame-sentinel/internal/logger"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/store"
	"github.com/raaihank/frame-sentinel/internal/stream"
	"github.com/raaihank/frame-sentinel/internal/websocket"
)

type fakePresets struct{}

func (fakePresets) BlurRulePresets(ctx context.Context) ([]store.BlurRulePreset, error) {
	return store.DefaultBlurRulePresets(), nil
}

func (fakePresets) BlurRulePreset(ctx context.Context, name string) (*store.BlurRulePreset, error) {
	for _, p := range store.DefaultBlurRulePresets() {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrPresetNotFound, name)
}

func (fakePresets) KeywordLists(ctx context.Context) ([]store.KeywordList, error) {
	return store.DefaultKeywordLists(), nil
}

func (fakePresets) KeywordList(ctx context.Context, name string) (*store.KeywordList, error) {
	for _, l := range store.DefaultKeywordLists() {
		if l.Name == name {
			return &l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrPresetNotFound, name)
}

type fakeSessions struct {
	counts map[string]int64
	err    error
	asked  int64
}

func (f *fakeSessions) DetectionStats(ctx context.Context, sessionID int64) (map[string]int64, error) {
	f.asked = sessionID
	return f.counts, f.err
}

type fakeCounters struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounters) Counts(ctx context.Context, sessionID int64) (map[string]int64, error) {
	return f.counts, f.err
}

type fakeRunner struct {
	stats stream.Stats
}

func (f *fakeRunner) Stats() stream.Stats { return f.stats }
func (f *fakeRunner) SessionID() int64    { return 9 }

func newTestServer(t *testing.T, deps Deps, hub *websocket.Hub, mutate ...func(*config.Config)) (*Server, *policy.Store) {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	for _, fn := range mutate {
		fn(cfg)
	}
	snapshots := policy.NewStore(policy.DefaultSnapshot())
	return New(cfg, logger.NewNop(), snapshots, hub, deps), snapshots
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndInfo(t *testing.T) {
	s, _ := newTestServer(t, Deps{Capabilities: stream.Capabilities{OCR: true}}, nil)

	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request ID header")
	}
	var health map[string]string
	decode(t, rec, &health)
	if health["status"] != "healthy" {
		t.Errorf("Unexpected health %v", health)
	}

	rec = do(t, s, http.MethodGet, "/info", "")
	var info struct {
		Name         string              `json:"name"`
		Version      string              `json:"version"`
		Capabilities stream.Capabilities `json:"capabilities"`
	}
	decode(t, rec, &info)
	if info.Name != "frame-sentinel" || info.Version != Version || !info.Capabilities.OCR {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestGetConfig(t *testing.T) {
	s, _ := newTestServer(t, Deps{}, nil)
	rec := do(t, s, http.MethodGet, "/api/config", "")
	var view policy.View
	decode(t, rec, &view)
	if view.DetectionConfidence != policy.DefaultConfidence {
		t.Errorf("Expected default confidence, got %v", view.DetectionConfidence)
	}
	if view.BlurRules["face"] != "pixelate" {
		t.Errorf("Expected face pixelate, got %v", view.BlurRules)
	}
}

func TestUpdateConfig(t *testing.T) {
	s, snapshots := newTestServer(t, Deps{}, nil)
	before := snapshots.Current().Keywords.Words()

	rec := do(t, s, http.MethodPut, "/api/config",
		`{"detection_confidence":0.8,"blur_rules":{"face":"gaussian","tail":"pixelate"},"theme":"dark"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ConfigUpdateResponse
	decode(t, rec, &resp)

	if resp.Config.DetectionConfidence != 0.8 {
		t.Errorf("Expected confidence 0.8, got %v", resp.Config.DetectionConfidence)
	}
	if len(resp.IgnoredKeys) != 1 || resp.IgnoredKeys[0] != "theme" {
		t.Errorf("Expected theme to be ignored, got %v", resp.IgnoredKeys)
	}
	if len(resp.RejectedRules) != 1 || resp.RejectedRules[0] != "tail" {
		t.Errorf("Expected tail to be rejected, got %v", resp.RejectedRules)
	}

	snap := snapshots.Current()
	if snap.Confidence != 0.8 || snap.Rules.Face != policy.Gaussian {
		t.Errorf("Store not updated: %+v", snap.View())
	}
	if snap.Rules.Screen != policy.EdgePreserving {
		t.Errorf("Rules not in the body must be kept, got screen %s", snap.Rules.Screen)
	}
	if got := snap.Keywords.Words(); len(got) != len(before) {
		t.Errorf("Keywords not in the body must be kept, got %v", got)
	}

	rec = do(t, s, http.MethodPut, "/api/config", `{"sensitive_keywords":["Payroll","payroll"," "]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := snapshots.Current().Keywords.Words(); len(got) != 1 || got[0] != "payroll" {
		t.Errorf("Expected one normalized keyword, got %v", got)
	}

	rec = do(t, s, http.MethodPut, "/api/config", `{"detection_confidence":7}`)
	if rec.Code != http.StatusOK || snapshots.Current().Confidence != 1 {
		t.Errorf("Expected confidence clamped to 1, got %v", snapshots.Current().Confidence)
	}
}

func TestUpdateConfigBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"NotJSON", `confidence=1`},
		{"WrongType", `{"detection_confidence":"high"}`},
		{"RulesNotObject", `{"blur_rules":["face"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, snapshots := newTestServer(t, Deps{}, nil)
			rec := do(t, s, http.MethodPut, "/api/config", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
			if snapshots.Version() != 0 {
				t.Error("A rejected body must not update the store")
			}
		})
	}
}

func TestPresets(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		s, _ := newTestServer(t, Deps{}, nil)
		for _, path := range []string{"/api/presets/rules", "/api/presets/keywords"} {
			if rec := do(t, s, http.MethodGet, path, ""); rec.Code != http.StatusServiceUnavailable {
				t.Errorf("%s: expected 503, got %d", path, rec.Code)
			}
		}
		if rec := do(t, s, http.MethodPost, "/api/presets/rules/High%20Privacy/apply", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})

	s, snapshots := newTestServer(t, Deps{Presets: fakePresets{}}, nil)

	t.Run("List", func(t *testing.T) {
		var presets []store.BlurRulePreset
		decode(t, do(t, s, http.MethodGet, "/api/presets/rules", ""), &presets)
		if len(presets) != 3 {
			t.Errorf("Expected 3 presets, got %d", len(presets))
		}
		var lists []store.KeywordList
		decode(t, do(t, s, http.MethodGet, "/api/presets/keywords", ""), &lists)
		if len(lists) != 3 {
			t.Errorf("Expected 3 keyword lists, got %d", len(lists))
		}
	})

	t.Run("ApplyRules", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/presets/rules/Professional%20Call/apply", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if snapshots.Current().Rules.Face != policy.None {
			t.Errorf("Expected face none after Professional Call, got %s", snapshots.Current().Rules.Face)
		}
	})

	t.Run("ApplyKeywords", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/presets/keywords/Financial%20Keywords/apply", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		found := false
		for _, w := range snapshots.Current().Keywords.Words() {
			if w == "iban" || w == "routing number" || w == "account number" {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected financial keywords, got %v", snapshots.Current().Keywords.Words())
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if rec := do(t, s, http.MethodPost, "/api/presets/rules/Nope/apply", ""); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
		if rec := do(t, s, http.MethodPost, "/api/presets/keywords/Nope/apply", ""); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})
}

func TestStatsFallback(t *testing.T) {
	runner := &fakeRunner{stats: stream.Stats{FrameNumber: 40, Totals: map[string]int64{"face": 4}}}
	down := errors.New("connection refused")

	tests := []struct {
		name     string
		sessions *fakeSessions
		counters *fakeCounters
		source   string
		face     int64
	}{
		{"Database", &fakeSessions{counts: map[string]int64{"face": 10}}, &fakeCounters{counts: map[string]int64{"face": 7}}, "database", 10},
		{"Redis", &fakeSessions{err: down}, &fakeCounters{counts: map[string]int64{"face": 7}}, "redis", 7},
		{"Memory", &fakeSessions{err: down}, &fakeCounters{err: down}, "memory", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, Deps{Sessions: tt.sessions, Counters: tt.counters, Runner: runner}, nil)
			rec := do(t, s, http.MethodGet, "/api/stats", "")
			var resp StatsResponse
			decode(t, rec, &resp)
			if resp.Source != tt.source || resp.Counts["face"] != tt.face {
				t.Errorf("Expected %s with %d faces, got %+v", tt.source, tt.face, resp)
			}
			if resp.SessionID != 9 || resp.Frames != 40 {
				t.Errorf("Expected the runner session and frames, got %+v", resp)
			}
		})
	}

	t.Run("SessionQuery", func(t *testing.T) {
		sessions := &fakeSessions{counts: map[string]int64{}}
		s, _ := newTestServer(t, Deps{Sessions: sessions, Runner: runner}, nil)
		do(t, s, http.MethodGet, "/api/stats?session=3", "")
		if sessions.asked != 3 {
			t.Errorf("Expected session 3 to be queried, got %d", sessions.asked)
		}
		if rec := do(t, s, http.MethodGet, "/api/stats?session=abc", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for a bad session id, got %d", rec.Code)
		}
	})

	t.Run("NothingWired", func(t *testing.T) {
		s, _ := newTestServer(t, Deps{}, nil)
		var resp StatsResponse
		decode(t, do(t, s, http.MethodGet, "/api/stats", ""), &resp)
		if resp.Source != "memory" || resp.Counts == nil {
			t.Errorf("Expected empty memory stats, got %+v", resp)
		}
	})
}

func TestFrame(t *testing.T) {
	s, _ := newTestServer(t, Deps{}, nil)
	if rec := do(t, s, http.MethodGet, "/frame.jpg", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a preview, got %d", rec.Code)
	}

	preview := stream.NewPreview(70)
	s, _ = newTestServer(t, Deps{Preview: preview}, nil)
	if rec := do(t, s, http.MethodGet, "/frame.jpg", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the first frame, got %d", rec.Code)
	}

	preview.Set(image.NewRGBA(image.Rect(0, 0, 8, 8)), 5)
	rec := do(t, s, http.MethodGet, "/frame.jpg", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", ct)
	}
	if rec.Header().Get("X-Frame-Number") != "5" {
		t.Errorf("Expected frame number 5, got %q", rec.Header().Get("X-Frame-Number"))
	}
	if b := rec.Body.Bytes(); len(b) < 2 || b[0] != 0xFF || b[1] != 0xD8 {
		t.Error("Body is not a JPEG")
	}
}

func TestRateLimitedEndpoints(t *testing.T) {
	s, _ := newTestServer(t, Deps{}, nil, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodPut, "/api/config", `{}`); rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := do(t, s, http.MethodPut, "/api/config", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after the burst, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/config", ""); rec.Code != http.StatusOK {
		t.Errorf("Reads must not be rate limited, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
	r.now = func() time.Time { return now }

	if !r.Allow("10.0.0.1") {
		t.Fatal("First request should pass")
	}
	if r.Allow("10.0.0.1") {
		t.Error("Second immediate request should be limited")
	}
	if !r.Allow("10.0.0.2") {
		t.Error("Clients have independent budgets")
	}

	now = now.Add(time.Second)
	if !r.Allow("10.0.0.1") {
		t.Error("One token per second should have refilled")
	}

	now = now.Add(2 * time.Hour)
	if removed := r.CleanupOldBuckets(); removed != 2 || r.Clients() != 0 {
		t.Errorf("Expected both idle buckets removed, removed %d, left %d", removed, r.Clients())
	}

	if !NewRateLimiter(config.RateLimitConfig{}).Allow("x") {
		t.Error("A disabled limiter allows everything")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"ForwardedFor", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "127.0.0.1:5000", "1.2.3.4"},
		{"RealIP", map[string]string{"X-Real-IP": "5.6.7.8"}, "127.0.0.1:5000", "5.6.7.8"},
		{"Remote", nil, "192.168.1.9:4242", "192.168.1.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := getClientIP(r); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWebSocketConfigBroadcast(t *testing.T) {
	hub := websocket.NewHub(websocket.DefaultHubConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	s, _ := newTestServer(t, Deps{}, hub)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("WebSocket upgrade through the middleware failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config", strings.NewReader(`{"detection_confidence":0.6}`))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	res.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev struct {
			Type string `json:"type"`
			Data struct {
				Source string      `json:"source"`
				Config policy.View `json:"config"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("No config_changed event received: %v", err)
		}
		if ev.Type != string(websocket.EventTypeConfigChanged) {
			continue
		}
		if ev.Data.Source != "api" || ev.Data.Config.DetectionConfidence != 0.6 {
			t.Errorf("Unexpected config_changed payload %+v", ev.Data)
		}
		return
	}
}
