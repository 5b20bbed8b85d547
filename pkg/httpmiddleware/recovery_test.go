package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecovery_PanicBecomes500(t *testing.T) {
	handler := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
}

func TestRecovery_PassThrough(t *testing.T) {
	handler := Recovery()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Connection"))
}
