package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"moviemaker/internal/adapter/memstore"
	"moviemaker/internal/http/handlers"
	"moviemaker/internal/infra"
	"moviemaker/internal/moviemaker"
	"moviemaker/internal/planner"
	"moviemaker/internal/providers/video"
	"moviemaker/internal/storage"
)

type clipGenerator struct{}

func (clipGenerator) Name() string { return "test" }

func (clipGenerator) Generate(ctx context.Context, req video.Request) (*video.Asset, error) {
	return &video.Asset{Data: []byte(fmt.Sprintf("clip-%d;", req.SceneID)), Format: "video/mp4"}, nil
}

// fileMedia stands in for ffmpeg by copying and concatenating file bytes.
type fileMedia struct{}

func (fileMedia) Available(context.Context) bool { return true }

func (fileMedia) ExtractFinalFrame(ctx context.Context, clip, out string) error {
	return os.WriteFile(out, []byte("frame"), 0o644)
}

func (fileMedia) ApplyStyle(ctx context.Context, frame, filter, out string) (bool, error) {
	data, err := os.ReadFile(frame)
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(out, data, 0o644)
}

func (fileMedia) Concatenate(ctx context.Context, clips []string, out string, withTransitions bool) error {
	var joined []byte
	for _, c := range clips {
		data, err := os.ReadFile(c)
		if err != nil {
			return err
		}
		joined = append(joined, data...)
	}
	return os.WriteFile(out, joined, 0o644)
}

func (fileMedia) CreateThumbnail(ctx context.Context, src, out string) error {
	return os.WriteFile(out, []byte("thumb"), 0o644)
}

func newTestServer(t *testing.T, rateLimit int) *httptest.Server {
	t.Helper()
	scratch, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	outputs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := moviemaker.New(moviemaker.Options{
		Store:   memstore.New(),
		Planner: planner.New(planner.Options{}),
		Video:   clipGenerator{},
		Media:   fileMedia{},
		Scratch: scratch,
		Outputs: outputs,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	cfg := &infra.Config{SceneFailurePolicy: infra.FailurePolicySkip}
	app := handlers.NewApp(svc, fileMedia{}, cfg, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(app, Options{Logger: zerolog.Nop(), RateLimitPerMin: rateLimit}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, url, data, err)
		}
	}
	return resp.StatusCode, out
}

func TestMovieLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, 100)
	base := srv.URL + "/v1/movies"

	code, created := call(t, http.MethodPost, base, `{"title":"T","concept":"a walk in a forest","style":"cinematic","preset":"short-film","max_clips":5,"budget":5.0,"auto_generate_script":false}`)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d body = %v", code, created)
	}
	id := created["project_id"].(string)
	if created["status"] != "created" || created["estimated_cost"] != 1.25 {
		t.Fatalf("created = %v", created)
	}

	code, _ = call(t, http.MethodPost, base+"/"+id+"/produce", "")
	if code != http.StatusConflict {
		t.Fatalf("produce without script status = %d", code)
	}

	code, script := call(t, http.MethodPost, base+"/"+id+"/script", "")
	if code != http.StatusOK {
		t.Fatalf("script status = %d body = %v", code, script)
	}
	scenes := script["scenes"].([]any)
	if len(scenes) == 0 || script["status"] != "script_ready" {
		t.Fatalf("script = %v", script)
	}

	code, _ = call(t, http.MethodPost, base+"/"+id+"/produce", "")
	if code != http.StatusAccepted {
		t.Fatalf("produce status = %d", code)
	}

	var status map[string]any
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, status = call(t, http.MethodGet, base+"/"+id+"/status", "")
		if status["status"] == "completed" || status["status"] == "failed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status["status"] != "completed" || status["progress"] != float64(100) {
		t.Fatalf("final status = %v", status)
	}
	if status["scenes_completed"] != float64(len(scenes)) {
		t.Fatalf("scenes_completed = %v, want %d", status["scenes_completed"], len(scenes))
	}

	resp, err := http.Get(base + "/" + id + "/download")
	if err != nil {
		t.Fatal(err)
	}
	movie, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(movie), "clip-1;clip-2;") {
		t.Fatalf("download = %d %q", resp.StatusCode, movie)
	}

	code, list := call(t, http.MethodGet, base+"/projects", "")
	if code != http.StatusOK || list["total"] != float64(1) {
		t.Fatalf("list = %d %v", code, list)
	}

	code, _ = call(t, http.MethodDelete, base+"/"+id, "")
	if code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	code, _ = call(t, http.MethodGet, base+"/"+id+"/status", "")
	if code != http.StatusNotFound {
		t.Fatalf("status after delete = %d", code)
	}
}

func TestCatalogRoutes(t *testing.T) {
	srv := newTestServer(t, 100)
	for _, path := range []string{"/v1/healthz", "/v1/movies/health", "/v1/movies/styles", "/v1/movies/presets"} {
		code, body := call(t, http.MethodGet, srv.URL+path, "")
		if code != http.StatusOK || len(body) == 0 {
			t.Fatalf("GET %s = %d %v", path, code, body)
		}
	}
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, 1)
	body := `{"title":"T","concept":"c","auto_generate_script":false}`

	if code, _ := call(t, http.MethodPost, srv.URL+"/v1/movies", body); code != http.StatusCreated {
		t.Fatalf("first create = %d", code)
	}
	if code, _ := call(t, http.MethodPost, srv.URL+"/v1/movies", body); code != http.StatusTooManyRequests {
		t.Fatalf("second create = %d", code)
	}
	if code, _ := call(t, http.MethodGet, srv.URL+"/v1/movies/projects", ""); code != http.StatusOK {
		t.Fatalf("reads must not be limited: %d", code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, 100)
	resp, err := http.Get(srv.URL + "/v1/movies/does-not-exist/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	rid := resp.Header.Get("X-Request-ID")
	if rid == "" || body["request_id"] != rid {
		t.Fatalf("request id header %q body %v", rid, body)
	}
}
