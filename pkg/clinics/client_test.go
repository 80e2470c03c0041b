package clinics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("requires a base URL", func(t *testing.T) {
		_, err := NewClient(Config{APIKey: "key"})
		assert.ErrorContains(t, err, "base URL")
	})

	t.Run("requires an API key", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "http://clinics.local"})
		assert.ErrorContains(t, err, "API key")
	})
}

func TestFindClinics(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Palermo", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))

		json.NewEncoder(w).Encode(map[string]any{
			"results": []Clinic{
				{Name: "Veterinaria Palermo", Address: "Av. Santa Fe 3100", Rating: 4.5},
			},
		})
	}))
	defer ts.Close()

	client, err := NewClient(Config{BaseURL: ts.URL, APIKey: "key-1"})
	require.NoError(t, err)

	clinics, err := client.FindClinics(context.Background(), "Palermo", 3)
	require.NoError(t, err)
	require.Len(t, clinics, 1)
	assert.Equal(t, "Veterinaria Palermo", clinics[0].Name)
}

func TestFindClinicsDefaultLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{"results": []Clinic{}})
	}))
	defer ts.Close()

	client, err := NewClient(Config{BaseURL: ts.URL, APIKey: "key-1"})
	require.NoError(t, err)

	clinics, err := client.FindClinics(context.Background(), "Belgrano", 0)
	require.NoError(t, err)
	assert.Empty(t, clinics)
}

func TestFindClinicsProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client, err := NewClient(Config{BaseURL: ts.URL, APIKey: "key-1"})
	require.NoError(t, err)

	_, err = client.FindClinics(context.Background(), "Palermo", 3)
	assert.ErrorContains(t, err, "429")
}
