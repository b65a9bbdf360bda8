package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/shmookey/coconut/internal/config"
	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/middleware"
	"github.com/shmookey/coconut/pkg/odm"
)

const typesYAML = `
types:
  Person:
    name: {type: string}
    email: {type: string, unique: true}
  Note:
    body: {type: string, default: ""}
    author: {ref: Person}
`

func writeSchema(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func memoryConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Schema.File = writeSchema(t, typesYAML)
	return cfg
}

func TestBuildRegistersSchemaTypes(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer a.Close(ctx)

	names := []string{}
	for _, typ := range a.Session.Types() {
		names = append(names, typ.Name())
	}
	require.ElementsMatch(t, []string{"Note", "Person", "Revision"}, names)
	require.Nil(t, a.Archiver)
	require.Nil(t, a.RateLimit())

	person, ok := a.Session.Type("Person")
	require.True(t, ok)
	p, err := person.New(nil)
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx))

	note, _ := a.Session.Type("Note")
	n, err := note.New(nil, odm.F("author", p))
	require.NoError(t, err)
	require.NoError(t, n.Save(ctx))
	body, _ := n.Map.String("body")
	require.Equal(t, "", body)
}

func TestBuildRejectsBadSchemaFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Schema.File = writeSchema(t, "types:\n  Bad:\n    x: {type: nope}\n")
	_, err := Build(context.Background(), cfg)
	require.True(t, errdefs.IsSchema(err))

	cfg.Schema.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Build(context.Background(), cfg)
	require.Error(t, err)
}

func TestBuildWithRedisCacheAndLimiter(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	host, port, _ := strings.Cut(m.Addr(), ":")

	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Redis = config.RedisConfig{Host: host, Port: port, CacheTTL: time.Minute}
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1, Window: time.Second}
	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NotNil(t, a.RateLimit())

	person, _ := a.Session.Type("Person")
	p, err := person.New(nil, odm.F("name", "ann"))
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx))
	_, err = person.Get(ctx, p.ID())
	require.NoError(t, err)
	require.NotEmpty(t, m.Keys())
}

func TestBuildWithUnreachableRedis(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Redis = config.RedisConfig{Host: "127.0.0.1", Port: "1"}
	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)
	require.Nil(t, a.redis)
}

func TestRouterRequiresTokenWhenSecretSet(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Auth.JWTSecret = "app-test-secret-32-bytes-xxxxxxxxx"
	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)

	r, err := a.Router(ctx)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/types", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := middleware.IssueToken(cfg.Auth.JWTSecret, "someone", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/types", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
