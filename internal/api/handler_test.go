package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/shmookey/coconut/pkg/archive"
	"github.com/shmookey/coconut/pkg/middleware"
	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/revision"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, errors.Errorf("missing %s", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	now := time.Unix(1700000000, 0)
	sess := odm.NewSession(memory.New(), odm.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	rec, err := revision.Install(sess)
	require.NoError(t, err)
	_, err = sess.Register("Person", schema.Map(map[string]*schema.Schema{
		"name":   schema.String(),
		"email":  schema.String().UniqueIndex(),
		"age":    schema.Int(),
		"score":  schema.Float(),
		"friend": schema.Ref("Person"),
		"tags":   schema.SeqOf(schema.String()),
		"extra":  schema.Any(),
	}))
	require.NoError(t, err)
	require.NoError(t, sess.EnsureIndexes(context.Background()))
	return Deps{
		Session:   sess,
		Revisions: rec,
		Archiver:  archive.New(&memObjects{data: map[string][]byte{}}, rec),
		Gatherer:  prometheus.NewRegistry(),
	}
}

func do(t *testing.T, g http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	var out map[string]interface{}
	if strings.HasPrefix(w.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestDocumentHandler_CRUD(t *testing.T) {
	g := NewRouter(newTestDeps(t))

	// create
	w, doc := do(t, g, http.MethodPost, "/api/Person", `{"name":"ann","age":30,"score":2,"tags":["a"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := doc["_id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, true, doc["__active__"])
	require.Nil(t, doc["email"])

	// get
	w, doc = do(t, g, http.MethodGet, "/api/Person/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ann", doc["name"])
	require.Equal(t, float64(30), doc["age"])
	require.Equal(t, []interface{}{"a"}, doc["tags"])

	// patch returns the written change set
	w, diff := do(t, g, http.MethodPatch, "/api/Person/"+id, `{"age":31,"name":"ann"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, map[string]interface{}{"age": float64(31)}, diff["set"])
	require.Empty(t, diff["unset"])

	// history
	w, hist := do(t, g, http.MethodGet, "/api/Person/"+id+"/history?field=age", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := hist["history"].([]interface{})
	require.Len(t, entries, 2)
	require.Equal(t, float64(31), entries[0].(map[string]interface{})["value"])
	require.Equal(t, float64(30), entries[1].(map[string]interface{})["value"])

	// list
	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/Person?limit=10&sort=-name", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	// delete
	w, _ = do(t, g, http.MethodDelete, "/api/Person/"+id, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w, _ = do(t, g, http.MethodGet, "/api/Person/"+id, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_References(t *testing.T) {
	g := NewRouter(newTestDeps(t))
	_, ann := do(t, g, http.MethodPost, "/api/Person", `{"name":"ann"}`)
	annID := ann["_id"].(string)

	w, bob := do(t, g, http.MethodPost, "/api/Person", `{"name":"bob","friend":"`+annID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, annID, bob["friend"])

	w, _ = do(t, g, http.MethodPost, "/api/Person", `{"name":"cat","friend":{"collection":"Person","id":"`+annID+`"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestDocumentHandler_Errors(t *testing.T) {
	g := NewRouter(newTestDeps(t))

	w, _ := do(t, g, http.MethodGet, "/api/Nobody/1", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, g, http.MethodPost, "/api/Person", `{"age":"old"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, g, http.MethodPost, "/api/Person", `{"nickname":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, g, http.MethodPost, "/api/Person", `{"_id":"forged"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, g, http.MethodPost, "/api/Person", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, g, http.MethodPost, "/api/Person", `{"email":"a@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w, body := do(t, g, http.MethodPost, "/api/Person", `{"email":"a@example.com"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, body["error"], "Person")

	w, _ = do(t, g, http.MethodPost, "/api/Revision", `{}`)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w, _ = do(t, g, http.MethodGet, "/api/Person?limit=zero", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTypesHealthAndMetrics(t *testing.T) {
	g := NewRouter(newTestDeps(t))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/types", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var types []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &types))
	require.Len(t, types, 2)

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthy", w.Body.String())

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestArchiveEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	g := NewRouter(deps)
	_, doc := do(t, g, http.MethodPost, "/api/Person", `{"name":"ann"}`)
	id := doc["_id"].(string)

	w, m := do(t, g, http.MethodPost, "/api/Person/"+id+"/archive", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, float64(1), m["revisions"])

	deps.Archiver = nil
	deps.Revisions = nil
	g = NewRouter(deps)
	w, _ = do(t, g, http.MethodPost, "/api/Person/"+id+"/archive", "")
	require.Equal(t, http.StatusNotImplemented, w.Code)
	w, _ = do(t, g, http.MethodGet, "/api/Person/"+id+"/history", "")
	require.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestAuthenticatedAPI(t *testing.T) {
	deps := newTestDeps(t)
	secret := "api-test-secret-32-bytes-xxxxxxxxx"
	deps.Verifier = middleware.NewHS256Verifier(secret)
	deps.RateLimit = middleware.RateLimitMiddleware(100, 100)
	g := NewRouter(deps)

	w, _ := do(t, g, http.MethodGet, "/api/types", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := middleware.IssueToken(secret, "tester", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/types", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	// health stays public
	w, _ = do(t, g, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDocumentHandler_WildcardReference(t *testing.T) {
	g := NewRouter(newTestDeps(t))
	_, ann := do(t, g, http.MethodPost, "/api/Person", `{"name":"ann"}`)
	annID := ann["_id"].(string)

	w, bob := do(t, g, http.MethodPost, "/api/Person",
		`{"name":"bob","extra":{"collection":"Person","id":"`+annID+`"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, map[string]interface{}{"collection": "Person", "id": annID}, bob["extra"])

	// other objects under a wildcard stay plain maps
	w, cat := do(t, g, http.MethodPost, "/api/Person",
		`{"name":"cat","extra":{"collection":"Person","id":"`+annID+`","note":"x"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "x", cat["extra"].(map[string]interface{})["note"])
}

func TestDocumentHandler_HistoryLimit(t *testing.T) {
	g := NewRouter(newTestDeps(t))
	_, doc := do(t, g, http.MethodPost, "/api/Person", `{"name":"ann","age":0}`)
	id := doc["_id"].(string)
	for _, age := range []string{"1", "2", "3"} {
		w, _ := do(t, g, http.MethodPatch, "/api/Person/"+id, `{"age":`+age+`}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w, hist := do(t, g, http.MethodGet, "/api/Person/"+id+"/history?field=age&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := hist["history"].([]interface{})
	require.Len(t, entries, 2)
	require.Equal(t, float64(3), entries[0].(map[string]interface{})["value"])
	require.Equal(t, float64(2), entries[1].(map[string]interface{})["value"])

	_, hist = do(t, g, http.MethodGet, "/api/Person/"+id+"/history?field=age", "")
	require.Len(t, hist["history"].([]interface{}), 4)

	w, _ = do(t, g, http.MethodGet, "/api/Person/"+id+"/history?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
