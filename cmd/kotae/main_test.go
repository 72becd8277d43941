package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
)

const leaveText = "Annual leave is twenty days."

const mockConfig = `
storage:
  index_path: ./store/index.vec
  database_path: ./db/kotae.db
  uploads_dir: ./uploads
providers:
  embedding:
    - name: mock-embed
      kind: mock
      dimensions: 16
  generation:
    - name: mock-llm
      kind: mock
      model: "Employees receive twenty days of leave [Source 1]."
`

// newMockComponents builds components from a config file that uses only mock providers.
func newMockComponents(t *testing.T) *Components {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(mockConfig), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	components, err := initializeComponents(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(components.Close)
	return components
}

func TestInitializeComponents_mockProviders(t *testing.T) {
	c := newMockComponents(t)
	ctx := context.Background()

	res, err := c.Engine.Answer(ctx, "anything")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != models.EmptyIndexAnswer {
		t.Errorf("answer on empty index = %q", res.Answer)
	}

	path := filepath.Join(t.TempDir(), "leave.txt")
	if err := os.WriteFile(path, []byte(leaveText), 0600); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Indexer.IngestFile(ctx, path); err != nil || n != 1 {
		t.Fatalf("IngestFile = %d, %v", n, err)
	}
	// The question is the passage itself, so it retrieves with similarity 1.
	res, err = c.Engine.Answer(ctx, leaveText)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Grounded || len(res.Citations) != 1 || !strings.Contains(res.Answer, "twenty days") {
		t.Errorf("got %+v", res)
	}
	if c.Store.Dimension() != 16 {
		t.Errorf("dimension = %d", c.Store.Dimension())
	}
}

func TestBuildEmbeddingProviders_onnxFallsBackToDisabled(t *testing.T) {
	c := &Components{}
	providers := buildEmbeddingProviders([]config.ProviderConfig{
		{Name: "local", Kind: config.KindONNX, ModelPath: filepath.Join(t.TempDir(), "missing.onnx"), Dimensions: 384},
		{Name: "ollama", Kind: config.KindOpenAI, BaseURL: "http://127.0.0.1:1/v1"},
	}, nil, c)
	if len(providers) != 2 {
		t.Fatalf("len = %d", len(providers))
	}
	st := providers[0].Status(context.Background())
	if st.Available || st.Name != "local" {
		t.Errorf("onnx status = %+v", st)
	}
	if providers[1].Name() != "ollama" {
		t.Errorf("second provider = %s", providers[1].Name())
	}
}

func TestAPIClient_roundTrip(t *testing.T) {
	c := newMockComponents(t)
	ts := httptest.NewServer(server.NewServer(c.Deps()).Handler())
	defer ts.Close()
	client := newAPIClient(ts.URL + "/")
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "leave.txt")
	if err := os.WriteFile(path, []byte(leaveText), 0600); err != nil {
		t.Fatal(err)
	}
	up, err := client.Upload(ctx, path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if up.Source != "leave.txt" || up.Chunks != 1 {
		t.Errorf("upload = %+v", up)
	}

	sources, err := client.Sources(ctx)
	if err != nil || len(sources) != 1 {
		t.Fatalf("Sources = %+v, %v", sources, err)
	}

	res, err := client.Answer(ctx, leaveText)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !res.Grounded || len(res.Citations) != 1 {
		t.Errorf("answer = %+v", res)
	}

	var streamed strings.Builder
	sres, err := client.AnswerStream(ctx, leaveText, func(s string) { streamed.WriteString(s) })
	if err != nil {
		t.Fatalf("AnswerStream: %v", err)
	}
	if sres.Answer != res.Answer || streamed.String() != "Employees receive twenty days of leave [Source 1]." {
		t.Errorf("stream answer = %q, tokens = %q", sres.Answer, streamed.String())
	}
	if len(sres.Citations) != 1 || sres.Citations[0].Source != "leave.txt" {
		t.Errorf("stream citations = %+v", sres.Citations)
	}

	report, err := client.Providers(ctx)
	if err != nil || len(report.Embedding) != 1 || len(report.Generation) != 1 {
		t.Errorf("Providers = %+v, %v", report, err)
	}
	status, err := client.Status(ctx)
	if err != nil || status.Chunks != 1 {
		t.Errorf("Status = %+v, %v", status, err)
	}

	summary, err := rag.Evaluate(ctx, client, []rag.EvalCase{{Question: leaveText, ExpectedSource: "leave"}})
	if err != nil || summary.HitRate != 1 {
		t.Errorf("Evaluate = %+v, %v", summary, err)
	}

	n, err := client.RemoveSource(ctx, "leave.txt")
	if err != nil || n != 1 {
		t.Errorf("RemoveSource = %d, %v", n, err)
	}
	_, err = client.RemoveSource(ctx, "leave.txt")
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("second remove: %v", err)
	}
}

func TestAPIClient_errorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"no provider reachable"}`))
	}))
	defer ts.Close()

	_, err := newAPIClient(ts.URL).Answer(context.Background(), "q")
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Message != "no provider reachable" {
		t.Errorf("got %v", err)
	}
}

func TestReadAnswerEvents(t *testing.T) {
	t.Run("done", func(t *testing.T) {
		body := "event: citations\ndata: [{\"source\":\"a.pdf\",\"page\":1,\"chunk_id\":\"1-1\",\"score\":0.9,\"text\":\"x\"}]\n\n" +
			"event: token\ndata: {\"text\":\"Hello \"}\n\n" +
			"event: token\ndata: {\"text\":\"world\"}\n\n" +
			"event: done\ndata: {\"grounded\":true,\"intent\":\"policy\"}\n\n"
		var tokens []string
		res, err := readAnswerEvents(strings.NewReader(body), func(s string) { tokens = append(tokens, s) })
		if err != nil {
			t.Fatal(err)
		}
		if res.Answer != "Hello world" || !res.Grounded || len(res.Citations) != 1 || len(tokens) != 2 {
			t.Errorf("got %+v, tokens %v", res, tokens)
		}
	})
	t.Run("error after tokens", func(t *testing.T) {
		body := "event: citations\ndata: []\n\nevent: token\ndata: {\"text\":\"Hel\"}\n\nevent: error\ndata: {\"error\":\"stream broken\"}\n\n"
		if _, err := readAnswerEvents(strings.NewReader(body), nil); err == nil || err.Error() != "stream broken" {
			t.Errorf("got %v", err)
		}
	})
	t.Run("truncated", func(t *testing.T) {
		if _, err := readAnswerEvents(strings.NewReader("event: citations\ndata: []\n\n"), nil); err == nil {
			t.Error("expected error for stream without done")
		}
	})
}

func TestSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.pdf", "notes.bin", filepath.Join("sub", "c.md")} {
		p := filepath.Join(dir, name)
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	var errs []error
	explicit := filepath.Join(dir, "notes.bin")
	got := supportedFiles([]string{dir, explicit, filepath.Join(dir, "missing.txt")}, &errs)
	if len(got) != 4 {
		t.Errorf("files = %v", got)
	}
	if got[len(got)-1] != explicit {
		t.Errorf("explicit file should be kept: %v", got)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v", errs)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret-value")
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	var out bytes.Buffer
	if err := writeDefaultConfig(&out, path, false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-value") || !strings.Contains(string(data), "${GEMINI_API_KEY}") {
		t.Error("environment references must be written unexpanded")
	}
	if err := writeDefaultConfig(&out, path, false); err == nil {
		t.Error("expected error for existing file without --force")
	}
	if err := writeDefaultConfig(&out, path, true); err != nil {
		t.Errorf("force: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "test.db") {
		t.Errorf("database path = %s", cfg.Storage.DatabasePath)
	}
}
