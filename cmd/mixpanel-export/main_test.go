package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setExportEnv(t *testing.T, url, output string) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("MIXPANEL_API_SECRET", "secret")
	t.Setenv("MIXPANEL_PROJECT_ID", "12345")
	t.Setenv("MIXPANEL_EXPORT_URL", url)
	t.Setenv("EXPORT_FROM_DATE", "2024-01-01")
	t.Setenv("EXPORT_TO_DATE", "2024-01-02")
	t.Setenv("EXPORT_OUTPUT_PATH", output)
	t.Setenv("EXPORT_S3_BUCKET", "")
}

func TestRun_WritesCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from_date"))
		assert.Equal(t, "2024-01-02", r.URL.Query().Get("to_date"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "secret", user)
		assert.Empty(t, pass)

		io.WriteString(w, `{"event":"login","properties":{"ip":"1.2.3.4"}}`+"\n"+
			`{"event":"click","properties":{"target":"btn"}}`+"\n")
	}))
	defer server.Close()

	output := filepath.Join(t.TempDir(), "events.csv")
	setExportEnv(t, server.URL, output)

	require.NoError(t, run(context.Background()))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "event_name,ip,target\nlogin,1.2.3.4,\nclick,,btn\n", string(data))
}

func TestRun_TransportFailureIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Unable to authenticate request"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	output := filepath.Join(t.TempDir(), "events.csv")
	setExportEnv(t, server.URL, output)

	require.NoError(t, run(context.Background()))

	_, err := os.Stat(output)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_InvalidRange(t *testing.T) {
	setExportEnv(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "events.csv"))
	t.Setenv("EXPORT_FROM_DATE", "2024-02-01")

	err := run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after to date")
}

func TestRun_MissingSecret(t *testing.T) {
	setExportEnv(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "events.csv"))
	t.Setenv("MIXPANEL_API_SECRET", "")
	t.Setenv("API_SECRET", "")

	err := run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "APISecret is required")
}
