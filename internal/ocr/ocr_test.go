package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newVisionTestClient(t *testing.T, body string) *VisionClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images:annotate", r.URL.Path)
		assert.Equal(t, "vision-key", r.URL.Query().Get("key"))

		var req struct {
			Requests []struct {
				Image struct {
					Content string `json:"content"`
				} `json:"image"`
			} `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Requests, 1)
		assert.NotEmpty(t, req.Requests[0].Image.Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	c, err := NewVisionClient(context.Background(), "vision-key", option.WithEndpoint(server.URL+"/"))
	require.NoError(t, err)
	return c
}

func TestNewVisionClientRequiresKey(t *testing.T) {
	_, err := NewVisionClient(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestVisionExtractText(t *testing.T) {
	c := newVisionTestClient(t, `{"responses":[{"fullTextAnnotation":{"text":"AADHAAR 1234 5678 9012\n","pages":[{"confidence":0.8},{"confidence":0.9}]}}]}`)

	text, conf, err := c.ExtractText(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "AADHAAR 1234 5678 9012", text)
	assert.InDelta(t, 0.85, conf, 1e-9)
}

func TestVisionExtractTextEmpty(t *testing.T) {
	c := newVisionTestClient(t, `{"responses":[{}]}`)

	text, conf, err := c.ExtractText(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func TestVisionResponseError(t *testing.T) {
	c := newVisionTestClient(t, `{"responses":[{"error":{"code":3,"message":"bad image"}}]}`)

	_, _, err := c.ExtractText(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad image")
}

func TestVisionDetectObjectsAndFaces(t *testing.T) {
	c := newVisionTestClient(t, `{"responses":[{
		"localizedObjectAnnotations":[{"name":"Book","score":0.9}],
		"labelAnnotations":[{"description":"Paper","score":0.7}],
		"faceAnnotations":[{"detectionConfidence":0.99},{"detectionConfidence":0.95}]
	}]}`)

	objects, err := c.DetectObjects(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "book", objects[0].Label)
	assert.Equal(t, "paper", objects[1].Label)

	faces, err := c.DetectFaces(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 2, faces)
}

func TestSpaceExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "space-key", r.Header.Get("apikey"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "eng", r.FormValue("language"))
		assert.True(t, strings.HasPrefix(r.FormValue("base64Image"), "data:"))
		w.Write([]byte(`{"ParsedResults":[{"ParsedText":" Passport No A1234567 "}],"IsErroredOnProcessing":false}`))
	}))
	defer server.Close()

	c, err := NewSpaceClient("space-key", server.URL)
	require.NoError(t, err)
	text, conf, err := c.ExtractText(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "Passport No A1234567", text)
	assert.Equal(t, 1.0, conf)
}

func TestSpaceProcessingError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"list message", `{"IsErroredOnProcessing":true,"ErrorMessage":["File failed validation"]}`},
		{"string message", `{"IsErroredOnProcessing":true,"ErrorMessage":"File failed validation"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := NewSpaceClient("space-key", server.URL)
			require.NoError(t, err)
			_, _, err = c.ExtractText(context.Background(), []byte("img"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "File failed validation")
		})
	}
}

func TestNewSpaceClientRequiresKey(t *testing.T) {
	_, err := NewSpaceClient("", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
