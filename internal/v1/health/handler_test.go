package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error { return s.err }

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Readyz)
	return router
}

func TestHealthzAlwaysOK(t *testing.T) {
	router := newRouter(NewHandler(&stubPinger{err: errors.New("down")}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestReadyzOK(t *testing.T) {
	router := newRouter(NewHandler(&stubPinger{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzStoreDown(t *testing.T) {
	router := newRouter(NewHandler(&stubPinger{err: errors.New("down")}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
