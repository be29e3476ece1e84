package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerperProvider_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "serper-key", r.Header.Get("X-API-KEY"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "solar grants", body["q"])

		w.Write([]byte(`{"organic":[
			{"title":"Solar Grant","link":"https://a.org/solar","snippet":"Apply","position":1,"date":"Jan 5, 2026"},
			{"title":"No link"},
			{"title":"Wind Fund","link":"https://b.org/wind","snippet":"Funding","position":2}
		]}`))
	}))
	defer srv.Close()

	p := NewSerperProvider("serper-key")
	p.Endpoint = srv.URL

	results, err := p.Search(context.Background(), "solar grants", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://a.org/solar", results[0].URL)
	assert.Equal(t, "serper", results[0].Provider)
	require.NotNil(t, results[0].Position)
	assert.Equal(t, 1, *results[0].Position)
	require.NotNil(t, results[0].PublishedDate)
	assert.Equal(t, 2026, results[0].PublishedDate.Year())
	assert.Nil(t, results[1].PublishedDate)
}

func TestBraveProvider_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brave-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		w.Write([]byte(`{"web":{"results":[
			{"title":"Arts Fund","url":"https://c.org/arts","description":"Support for <strong>arts</strong> groups","page_age":"2026-02-01T10:00:00"}
		]}}`))
	}))
	defer srv.Close()

	p := NewBraveProvider("brave-key")
	p.Endpoint = srv.URL

	results, err := p.Search(context.Background(), "arts", 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Support for arts groups", results[0].Snippet)
	assert.Equal(t, "brave", results[0].Provider)
	require.NotNil(t, results[0].PublishedDate)
}

func TestProviders_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewSerperProvider("k")
	p.Endpoint = srv.URL
	_, err := p.Search(context.Background(), "q", 10)
	assert.ErrorContains(t, err, "serper returned status: 429")
}

func TestProvidersFromKeys(t *testing.T) {
	assert.Empty(t, ProvidersFromKeys("", ""))

	ps := ProvidersFromKeys("s", "b")
	require.Len(t, ps, 2)
	assert.Equal(t, "serper", ps[0].Name())
	assert.Equal(t, "brave", ps[1].Name())
}
