package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

// serveWithRequestID pasa el request por middleware.RequestID y devuelve lo que ve el handler.
func serveWithRequestID(t *testing.T, req *http.Request) (seen string, rec *httptest.ResponseRecorder) {
	t.Helper()

	handler := middleware.RequestID(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		seen = RequestIDFrom(request)
		Fail(writer, request, http.StatusConflict, "conflict", "item changed")
	}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec
}

func TestRequestIDFrom(t *testing.T) {
	t.Run("middleware generates an id when the client sends none", func(t *testing.T) {
		seen, rec := serveWithRequestID(t, httptest.NewRequest(http.MethodDelete, "/items/3", nil))

		require.NotEmpty(t, seen)
		require.Equal(t, seen, decodeResponse(t, rec).Meta.RequestID)
	})

	t.Run("middleware keeps the client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/items/3", nil)
		req.Header.Set(middleware.RequestIDHeader, "shopping-42")

		seen, rec := serveWithRequestID(t, req)

		require.Equal(t, "shopping-42", seen)
		require.Equal(t, "shopping-42", decodeResponse(t, rec).Meta.RequestID)
	})

	t.Run("each request gets its own id", func(t *testing.T) {
		first, _ := serveWithRequestID(t, httptest.NewRequest(http.MethodGet, "/items", nil))
		second, _ := serveWithRequestID(t, httptest.NewRequest(http.MethodGet, "/items", nil))

		require.NotEqual(t, first, second)
	})

	t.Run("handler without middleware reads the header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/items", nil)
		req.Header.Set("X-Request-Id", "shopping-7")

		require.Equal(t, "shopping-7", RequestIDFrom(req))
	})

	t.Run("nothing to read", func(t *testing.T) {
		require.Empty(t, RequestIDFrom(nil))
		require.Empty(t, RequestIDFrom(httptest.NewRequest(http.MethodGet, "/items", nil)))
	})
}
