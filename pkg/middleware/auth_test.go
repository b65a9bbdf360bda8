package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier implements Verifier
type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == "goodtoken" {
		return &fakeToken{data: map[string]interface{}{"sub": "user1", "email": "test@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(h gin.HandlerFunc, header string) *httptest.ResponseRecorder {
	g := gin.New()
	g.GET("/", h, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sub": Subject(c)})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(AuthMiddleware(&fakeVerifier{}), "")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	rw := serve(AuthMiddleware(&fakeVerifier{}), "BadHeader")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serve(AuthMiddleware(&fakeVerifier{}), "Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["sub"])
}

func TestHS256Verifier(t *testing.T) {
	secret := "test-secret-32-bytes-should-be-long-enough"
	tok, err := IssueToken(secret, "user-123", 2*time.Minute)
	require.NoError(t, err)

	rw := serve(AuthMiddleware(NewHS256Verifier(secret)), "Bearer "+tok)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "user-123")

	rw = serve(AuthMiddleware(NewHS256Verifier("different-secret-xxxxxxxxxxxxxxxx")), "Bearer "+tok)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestHS256VerifierRejectsExpired(t *testing.T) {
	secret := "another-secret-32-bytes-longgggg"
	tok, err := IssueToken(secret, "u2", -time.Minute)
	require.NoError(t, err)
	_, err = NewHS256Verifier(secret).Verify(context.Background(), tok)
	require.Error(t, err)
}

func TestHS256VerifierRejectsAlgNone(t *testing.T) {
	headerEnc := new(jwt.Token).EncodeSegment([]byte(`{"alg":"none"}`))
	payloadEnc := new(jwt.Token).EncodeSegment([]byte(`{"sub":"u-none","exp":9999999999}`))
	_, err := NewHS256Verifier("x").Verify(context.Background(), headerEnc+"."+payloadEnc+".")
	require.Error(t, err)
}

func TestHS256VerifierRejectsTamperedPayload(t *testing.T) {
	secret := "tamper-test-secret-32-bytes-xxxxxxx"
	tok, err := IssueToken(secret, "user-t", 5*time.Minute)
	require.NoError(t, err)
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	require.NoError(t, err)
	parts[1] = new(jwt.Token).EncodeSegment([]byte(strings.Replace(string(payload), "user-t", "attacker", 1)))
	_, err = NewHS256Verifier(secret).Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}

func TestAnyVerifier(t *testing.T) {
	secret := "any-verifier-secret-32-bytes-xxxxx"
	tok, err := IssueToken(secret, "u3", time.Minute)
	require.NoError(t, err)
	v := AnyVerifier{&fakeVerifier{}, NewHS256Verifier(secret)}

	_, err = v.Verify(context.Background(), "goodtoken")
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), tok)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), "garbage")
	require.Error(t, err)

	_, err = AnyVerifier{}.Verify(context.Background(), tok)
	require.Error(t, err)
}
