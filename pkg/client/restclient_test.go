package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

func TestListOptionsQueryStringIsCanonical(t *testing.T) {
	a := ListOptions{Page: 2, PageSize: 20, Search: "rina", Filters: map[string]string{"city": "Jakarta", "active": "true"}}
	b := ListOptions{Page: 2, PageSize: 20, Search: "rina", Filters: map[string]string{"active": "true", "city": "Jakarta"}}
	assert.Equal(t, a.QueryString(), b.QueryString())
	assert.Equal(t, "active=true&city=Jakarta&page=2&page_size=20&search=rina", a.QueryString())
}

func TestListOptionsQueryStringDropsSentinels(t *testing.T) {
	opts := ListOptions{
		Page:     1,
		PageSize: 20,
		Search:   "   ",
		Filters:  map[string]string{"city": "all", "active": "", "gender": "ALL", "company_id": "co1"},
	}
	assert.Equal(t, "company_id=co1&page=1&page_size=20", opts.QueryString())
}

func TestClientListDecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "rina", r.URL.Query().Get("search"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"id": "p1", "full_name": "Rina"}},
			"meta": models.ListMeta{CurrentPage: 1, PerPage: 20, Total: 1, LastPage: 1},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	c.SetToken("token-1")

	var patients []map[string]string
	meta, err := c.List(context.Background(), "patients", ListOptions{Page: 1, PageSize: 20, Search: "rina"}, &patients)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 1, meta.Total)
	require.Len(t, patients, 1)
	assert.Equal(t, "Rina", patients[0]["full_name"])
}

func TestClientSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": "NOT_FOUND", "message": "patient not found", "status": 404},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	err := c.Get(context.Background(), "patients", "missing", nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestClientUploadPostsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/patients/p1/photo", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "photo.png", header.Filename)
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("fake image bytes"), content)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"photo_path": "patients/p1/abc.png"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	c.SetToken("token-1")

	var out map[string]string
	err := c.Upload(context.Background(), "patients", "p1", "photo", "photo.png",
		strings.NewReader("fake image bytes"), &out)
	require.NoError(t, err)
	assert.Equal(t, "patients/p1/abc.png", out["photo_path"])
}

func TestClientUploadSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": "UNSUPPORTED_MEDIA_TYPE", "message": "unsupported file type", "status": 415},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	err := c.Upload(context.Background(), "clinics", "c1", "logo", "logo.txt",
		strings.NewReader("not an image"), nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", appErr.Code)
}

func TestClientDeleteHandlesNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	require.NoError(t, c.Delete(context.Background(), "patients", "p1"))
}
