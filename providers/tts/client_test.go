package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	audio := []byte("mp3-bytes")
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"ie":     q.Get("ie"),
			"tl":     q.Get("tl"),
			"client": q.Get("client"),
			"q":      q.Get("q"),
		}
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ar")
	defer c.Close()

	data, err := c.Fetch(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, audio, data)
	require.Equal(t, "UTF-8", gotQuery["ie"])
	require.Equal(t, "ar", gotQuery["tl"])
	require.Equal(t, "tw-ob", gotQuery["client"])
	require.Equal(t, "hello world", gotQuery["q"])
}

func TestFetchTruncatesLongText(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotText = r.URL.Query().Get("q")
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "en")
	defer c.Close()

	long := strings.Repeat("x", 1000)
	_, err := c.Fetch(context.Background(), long)
	require.NoError(t, err)
	require.Len(t, []rune(gotText), maxTextRunes)
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "empty") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "en")
	defer c.Close()

	_, err := c.Fetch(context.Background(), "anything")
	require.ErrorContains(t, err, "unexpected status")

	_, err = c.Fetch(context.Background(), "empty")
	require.ErrorContains(t, err, "empty audio body")
}
