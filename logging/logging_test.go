package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FormatsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "warn", "json")
	require.NoError(t, err)

	log.Info("hidden")
	log.WithField("item", "A-100").Warn("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "A-100", entry["item"])

	_, err = NewWithOutput(&buf, "loud", "json")
	assert.Error(t, err)
	_, err = NewWithOutput(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestMiddleware_LogsStatusAndRequestID(t *testing.T) {
	log, hook := test.NewNullLogger()
	handler := middleware.RequestID(Middleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("nope"))
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/transactions", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, http.StatusConflict, entry.Data["status"])
	assert.Equal(t, "/api/transactions", entry.Data["path"])
	assert.Equal(t, 4, entry.Data["bytes"])
	assert.NotEmpty(t, entry.Data["request_id"])
}
