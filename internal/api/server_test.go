package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/pipeline"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/database"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/parsers"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/storage"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	socialInput  = "HOLA!!1111 gente lindaaaaa!!! mi nombre es @Pedro re loco jjajajajjja y mi correo es pedrito@gmail.com"
	socialOutput = "hola gente linda mi nombre es mention muy loco jaja y mi correo es email"
)

type testEnv struct {
	handler http.Handler
	store   *storage.CorpusStore
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard()

	runs, err := database.OpenSQLite(ctx, ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	store, err := storage.NewCorpusStore(&storage.StoreConfig{
		BasePath:    t.TempDir(),
		DefaultDirs: map[string]string{"regex_norm": filepath.Join("models", "regex_norm")},
	}, log)
	require.NoError(t, err)

	bundled := filepath.Join("..", "..", "configs", "preprocessing_1.yml")
	svc := pipeline.NewService(func(ref string) string {
		if ref == "preprocessing_1" {
			return bundled
		}
		return ref
	},
		pipeline.WithLogger(log),
		pipeline.WithSink(store),
		pipeline.WithArtifactStore(store),
		pipeline.WithRunRecorder(runs),
	)

	server := NewServer(svc,
		WithLogger(log),
		WithCorpusReaders(parsers.NewReaderFactory(parsers.DefaultReaderConfig())),
		WithUploads(store),
		WithRuns(runs),
		WithVersion("test"),
	)
	return &testEnv{handler: server.Handler(), store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (e *testEnv) upload(t *testing.T, name, content string) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	decoded["http_status"] = float64(rec.Code)
	return decoded
}

func TestPipelineProcessing_Sequence(t *testing.T) {
	env := setupTestServer(t)

	rec, body := env.do(t, http.MethodPost, "/pipeline_processing", map[string]interface{}{
		"config": "preprocessing_1",
		"data":   []string{socialInput},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, SuccessMessage, body["message"])
	assert.Equal(t, []interface{}{socialOutput}, body["processedData"])
	assert.Equal(t, []interface{}{"regex_norm", "countvec"}, body["stages"])
	assert.NotEmpty(t, body["run_id"])
}

func TestPipelineProcessing_InlineConfig(t *testing.T) {
	env := setupTestServer(t)

	rec, body := env.do(t, http.MethodPost, "/pipeline_processing", `{
		"config": {"pipeline": {"regex_norm": {"active": true, "handlers": {"normalize_digit": {"active": true, "replacement": ""}}}}},
		"data": ["tengo 3 gatos"]
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []interface{}{"tengo  gatos"}, body["processedData"])
}

func TestPipelineProcessing_ConfigStringMustBeAlias(t *testing.T) {
	env := setupTestServer(t)

	for _, ref := range []string{"/etc/passwd", filepath.Join("..", "..", "configs", "preprocessing_1.yml"), "/no/such/file.yml"} {
		rec, body := env.do(t, http.MethodPost, "/pipeline_processing", map[string]interface{}{
			"config": ref,
			"data":   []string{"hola"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, ref)
		assert.Equal(t, "CONFIG_ERROR", body["code"], ref)
		// readable and missing files are reported alike
		assert.Equal(t, "unknown configuration alias \""+ref+"\"", body["message"], ref)
	}
}

func TestPipelineProcessing_InlineConfigPathsStayInStorage(t *testing.T) {
	env := setupTestServer(t)
	outside := t.TempDir()

	inline := func(dir string) string {
		doc, err := json.Marshal(map[string]interface{}{
			"config": map[string]interface{}{"pipeline": map[string]interface{}{
				"regex_norm": map[string]interface{}{
					"active":                  true,
					"path_to_save_normcorpus": dir,
					"handlers":                map[string]interface{}{"normalize_lowercase_diacritic": map[string]interface{}{"active": true}},
				},
			}},
			"data":    []string{"HOLA"},
			"persist": true,
		})
		require.NoError(t, err)
		return string(doc)
	}

	rec, body := env.do(t, http.MethodPost, "/pipeline_processing", inline(outside))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", body["code"])
	entries, err := os.ReadDir(outside)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec, body = env.do(t, http.MethodPost, "/pipeline_processing", inline(filepath.Join(outside, "..", "..", "etc")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	inside := filepath.Join(env.store.BasePath(), "custom")
	require.NoError(t, os.MkdirAll(inside, 0755))
	rec, body = env.do(t, http.MethodPost, "/pipeline_processing", inline(inside))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	persisted := body["persisted_to"].([]interface{})
	require.Len(t, persisted, 1)
	assert.Equal(t, inside, filepath.Dir(persisted[0].(string)))
}

func TestPipelineProcessing_SpecificProcess(t *testing.T) {
	env := setupTestServer(t)

	rec, body := env.do(t, http.MethodPost, "/pipeline_processing_by_specific_process", map[string]interface{}{
		"config":        "preprocessing_1",
		"data":          []string{"q pasa kien sos"},
		"process_alias": "regex_norm",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []interface{}{" que pasa quien sos"}, body["processedData"])
	assert.Equal(t, []interface{}{"regex_norm"}, body["stages"])
}

func TestPipelineProcessing_Errors(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "invalid json",
			path:   "/pipeline_processing",
			body:   "{",
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "missing config",
			path:   "/pipeline_processing",
			body:   map[string]interface{}{"data": []string{"hola"}},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "config is a number",
			path:   "/pipeline_processing",
			body:   map[string]interface{}{"config": 3, "data": []string{"hola"}},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "unknown config alias",
			path:   "/pipeline_processing",
			body:   map[string]interface{}{"config": "prepro_9", "data": []string{"hola"}},
			status: http.StatusBadRequest,
			code:   "CONFIG_ERROR",
		},
		{
			name:   "missing data",
			path:   "/pipeline_processing",
			body:   map[string]interface{}{"config": "preprocessing_1"},
			status: http.StatusBadRequest,
			code:   "INVALID_CORPUS",
		},
		{
			name:   "missing process alias",
			path:   "/pipeline_processing_by_specific_process",
			body:   map[string]interface{}{"config": "preprocessing_1", "data": []string{"hola"}},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "unknown process",
			path:   "/pipeline_processing_by_specific_process",
			body:   map[string]interface{}{"config": "preprocessing_1", "data": []string{"hola"}, "process_alias": "tfidf"},
			status: http.StatusBadRequest,
			code:   "UNKNOWN_PROCESS",
		},
		{
			name:   "inactive process",
			path:   "/pipeline_processing_by_specific_process",
			body:   map[string]interface{}{"config": "preprocessing_1", "data": []string{"hola"}, "process_alias": "word2vec"},
			status: http.StatusConflict,
			code:   "INACTIVE_PROCESS",
		},
		{
			name:   "untrained featurizer",
			path:   "/pipeline_processing_by_specific_process",
			body:   map[string]interface{}{"config": "preprocessing_1", "data": []string{"hola"}, "process_alias": "countvec"},
			status: http.StatusConflict,
			code:   "NO_TRAINED_MODEL",
		},
		{
			name:   "corpus outside uploads",
			path:   "/pipeline_processing",
			body:   map[string]interface{}{"config": "preprocessing_1", "corpus_path": "/etc/passwd"},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestUploadThenProcessCorpusFile(t *testing.T) {
	env := setupTestServer(t)

	uploaded := env.upload(t, "corpus.txt", "HOLA gente\nq pasa\n")
	require.Equal(t, float64(http.StatusCreated), uploaded["http_status"])
	path, ok := uploaded["corpus_path"].(string)
	require.True(t, ok)

	rec, body := env.do(t, http.MethodPost, "/pipeline_processing_by_specific_process", map[string]interface{}{
		"config":        "preprocessing_1",
		"corpus_path":   path,
		"process_alias": "regex_norm",
		"persist":       true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []interface{}{"hola gente", " que pasa"}, body["processedData"])
	assert.Len(t, body["persisted_to"], 1)

	rejected := env.upload(t, "corpus.pdf", "%PDF")
	assert.Equal(t, float64(http.StatusBadRequest), rejected["http_status"])
}

func TestRunsEndpoints(t *testing.T) {
	env := setupTestServer(t)

	_, body := env.do(t, http.MethodPost, "/pipeline_processing", map[string]interface{}{
		"config": "preprocessing_1",
		"data":   []string{"hola"},
	})
	runID, ok := body["run_id"].(string)
	require.True(t, ok)

	rec, list := env.do(t, http.MethodGet, "/runs?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs, ok := list["runs"].([]interface{})
	require.True(t, ok)
	require.Len(t, runs, 1)
	assert.Equal(t, map[string]interface{}{"completed": float64(1)}, list["counts"])

	rec, run := env.do(t, http.MethodGet, "/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", run["status"])
	assert.Equal(t, "sequence", run["mode"])
	assert.Equal(t, float64(1), run["records"])

	rec, _ = env.do(t, http.MethodGet, "/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/runs/3f2b8f9e-0d7c-4a57-9a51-0c1c4b0f6e11", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/runs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	rec, body := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, []interface{}{"countvec", "regex_norm", "word2vec"}, body["processes"])

	rec, body = env.do(t, http.MethodGet, "/pipeline_processing", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "BAD_REQUEST", body["code"])

	rec, body = env.do(t, http.MethodGet, "/no/such/route", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestPipelineProcessing_BodyTooLarge(t *testing.T) {
	svc := pipeline.NewService(func(ref string) string { return ref }, pipeline.WithLogger(logger.Discard()))
	env := &testEnv{handler: NewServer(svc, WithLogger(logger.Discard()), WithMaxBodyBytes(32)).Handler()}

	rec, body := env.do(t, http.MethodPost, "/pipeline_processing", PipelineRequest{
		Config: json.RawMessage(`"preprocessing_1"`),
		Data:   []string{socialInput},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "BAD_REQUEST", body["code"])
}
