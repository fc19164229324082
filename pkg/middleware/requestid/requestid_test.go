package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	var got string
	r.GET("/", func(c *gin.Context) {
		got = Value(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, got
}

func TestMiddlewareAssignsUUID(t *testing.T) {
	w, got := serve(t, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, got)
	assert.Equal(t, got, w.Header().Get("X-Request-ID"))
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestMiddlewareKeepsCallerRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "trace-123")

	w, got := serve(t, req)

	assert.Equal(t, "trace-123", got)
	assert.Equal(t, "trace-123", w.Header().Get("X-Request-ID"))
}
