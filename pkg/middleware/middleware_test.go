package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	infos  []string
	errors []string
}

func (l *recordingLogger) Infow(msg string, _ ...interface{})  { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Errorw(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())

	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		id := w.Header().Get(HeaderRequestID)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, seen)
	})

	t.Run("propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "abc")
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "abc", seen)
	})
}

func TestActorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ActorMiddleware())

	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = Actor(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActor, " alice ")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "alice", seen)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, DefaultActor, seen)
}

func TestActorDefaultsToSystem(t *testing.T) {
	assert.Equal(t, DefaultActor, Actor(context.Background()))
	assert.Equal(t, DefaultActor, Actor(WithActor(context.Background(), "")))
}

func TestRecoveryAndLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &recordingLogger{}

	r := gin.New()
	r.Use(LoggerMiddleware(log), RecoveryMiddleware(log))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, []string{"Panic recovered", "HTTP Request"}, log.errors)
	assert.Equal(t, []string{"HTTP Request"}, log.infos)
}
