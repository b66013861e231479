package stores

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cst "wuyrush.io/pinboard/constants"
	md "wuyrush.io/pinboard/models"
)

func TestNewRef(t *testing.T) {
	tcs := []struct {
		name      string
		filename  string
		expSuffix string
	}{
		{name: "KeepsExtension", filename: "beach.JPG", expSuffix: ".jpg"},
		{name: "NoExtension", filename: "beach", expSuffix: ""},
		{name: "TrailingDot", filename: "beach.", expSuffix: ""},
		{name: "NestedPath", filename: "../../etc/passwd.png", expSuffix: ".png"},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			ref := NewRef(c.filename)
			assert.True(t, strings.HasPrefix(ref, cst.ImagePathPrefix+"/"), ref)
			assert.True(t, strings.HasSuffix(ref, c.expSuffix), ref)
			assert.NotContains(t, ref, "..")
			assert.Equal(t, 1, strings.Count(ref, "/"), ref)
		})
	}
	assert.NotEqual(t, NewRef("a.png"), NewRef("a.png"), "refs must never collide")
}

func TestLocalFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := &LocalFileStore{Dir: dir, BaseURL: "http://localhost:8081/files/"}
	ref := fs.Ref("beach.png")

	url, err := fs.Save(ctx, ref, &md.File{Name: "beach.png", Body: strings.NewReader("fake png")})
	require.Nil(t, err)
	assert.Equal(t, "http://localhost:8081/files/"+ref, url)

	b, rerr := ioutil.ReadFile(filepath.Join(dir, filepath.FromSlash(ref)))
	require.NoError(t, rerr)
	assert.Equal(t, "fake png", string(b))

	require.Nil(t, fs.Delete(ctx, ref))
	_, serr := os.Stat(filepath.Join(dir, filepath.FromSlash(ref)))
	assert.True(t, os.IsNotExist(serr))
	assert.Nil(t, fs.Delete(ctx, ref), "Delete must be idempotent")
}

func TestS3FileStore(t *testing.T) {
	ctx := context.Background()
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if strings.Contains(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := NewS3FileStore(S3Options{
		Endpoint:        srv.URL,
		Region:          "auto",
		Bucket:          "pins",
		AccessKeyID:     "fake",
		SecretAccessKey: "fake",
		PublicBaseURL:   "https://cdn.example.com",
	})

	t.Run("Save", func(t *testing.T) {
		ref := fs.Ref("beach.png")
		url, err := fs.Save(ctx, ref, &md.File{Name: "beach.png", ContentType: "image/png", Body: strings.NewReader("fake png")})
		require.Nil(t, err)
		assert.Equal(t, "https://cdn.example.com/"+ref, url)
		mu.Lock()
		defer mu.Unlock()
		assert.Contains(t, paths, "PUT /pins/"+ref)
	})

	t.Run("SaveFailure", func(t *testing.T) {
		_, err := fs.Save(ctx, cst.ImagePathPrefix+"/broken.png", &md.File{Name: "broken.png", Body: strings.NewReader("x")})
		require.NotNil(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		ref := fs.Ref("beach.png")
		require.Nil(t, fs.Delete(ctx, ref))
		mu.Lock()
		defer mu.Unlock()
		assert.Contains(t, paths, "DELETE /pins/"+ref)
	})
}
