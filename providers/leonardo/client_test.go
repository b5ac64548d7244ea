package leonardo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidforge/core/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(nil)
	os.Exit(m.Run())
}

func TestValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me", r.URL.Path)
		if r.Header.Get("Authorization") == "Bearer good-key" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	defer c.Close()

	require.NoError(t, c.Validate(context.Background(), "good-key"))
	require.Error(t, c.Validate(context.Background(), "bad-key"))
	require.Error(t, c.Validate(context.Background(), ""))
}

func TestGenerateHappyPath(t *testing.T) {
	var (
		pollCount int
		imageBody = []byte("jpeg-bytes")
	)
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /generations", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, defaultModelID, req.ModelID)
		require.Equal(t, 1024, req.Width)
		require.Equal(t, 576, req.Height)
		require.LessOrEqual(t, len([]rune(req.Prompt)), maxPromptRunes)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sdGenerationJob": map[string]any{"generationId": "gen-1"},
		})
	})
	mux.HandleFunc("GET /generations/gen-1", func(w http.ResponseWriter, r *http.Request) {
		pollCount++
		status := "PENDING"
		images := []map[string]string{}
		if pollCount >= 2 {
			status = "COMPLETE"
			images = []map[string]string{{"url": srv.URL + "/image.jpg"}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"generations_by_pk": map[string]any{
				"status":           status,
				"generated_images": images,
			},
		})
	})
	mux.HandleFunc("GET /image.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(imageBody)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithPolling(10*time.Millisecond, time.Second),
	)
	defer c.Close()

	data, err := c.Generate(context.Background(), strings.Repeat("long prompt ", 200), "key")
	require.NoError(t, err)
	require.Equal(t, imageBody, data)
	require.GreaterOrEqual(t, pollCount, 2)
}

func TestGenerateFailedUpstream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sdGenerationJob": map[string]any{"generationId": "gen-2"},
		})
	})
	mux.HandleFunc("GET /generations/gen-2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"generations_by_pk": map[string]any{"status": "FAILED"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithPolling(10*time.Millisecond, time.Second),
	)
	defer c.Close()

	_, err := c.Generate(context.Background(), "prompt", "key")
	require.ErrorContains(t, err, "failed upstream")
}

func TestGeneratePollTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sdGenerationJob": map[string]any{"generationId": "gen-3"},
		})
	})
	mux.HandleFunc("GET /generations/gen-3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"generations_by_pk": map[string]any{"status": "PENDING"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithPolling(10*time.Millisecond, 60*time.Millisecond),
	)
	defer c.Close()

	_, err := c.Generate(context.Background(), "prompt", "key")
	require.ErrorIs(t, err, ErrPollTimeout)
}

func TestGenerateMissingGenerationID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"sdGenerationJob": map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	defer c.Close()

	_, err := c.Generate(context.Background(), "prompt", "key")
	require.ErrorContains(t, err, "missing generation id")
}
