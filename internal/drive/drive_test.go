package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type fakeDriveAPI struct {
	files   map[string][]byte // id -> content
	listing []map[string]string
	queries []string
}

func (f *fakeDriveAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("alt") == "media" {
		id := filepath.Base(r.URL.Path)
		data, ok := f.files[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
		return
	}
	f.queries = append(f.queries, r.URL.Query().Get("q"))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"files": f.listing})
}

func newFolder(t *testing.T, api *fakeDriveAPI) *Folder {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := gdrive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewFolder(svc, "folder-1", zerolog.Nop())
}

func TestFolderFetchFirstMatch(t *testing.T) {
	api := &fakeDriveAPI{
		files: map[string][]byte{"id-1": []byte("first"), "id-2": []byte("second")},
		listing: []map[string]string{
			{"id": "id-1", "name": "cat.jpg"},
			{"id": "id-2", "name": "cat.jpg"},
		},
	}
	folder := newFolder(t, api)

	data, err := folder.Fetch(context.Background(), "cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	require.Len(t, api.queries, 1)
	assert.Equal(t, "name = 'cat.jpg' and 'folder-1' in parents and trashed = false", api.queries[0])
}

func TestFolderFetchNotFound(t *testing.T) {
	folder := newFolder(t, &fakeDriveAPI{})

	_, err := folder.Fetch(context.Background(), "cat.jpg")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestFolderEscapesQuotes(t *testing.T) {
	api := &fakeDriveAPI{}
	folder := newFolder(t, api)

	_, _ = folder.Fetch(context.Background(), "it's.jpg")
	require.Len(t, api.queries, 1)
	assert.Contains(t, api.queries[0], `name = 'it\'s.jpg'`)
}

func TestDirFetch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cat.jpg"), []byte("meow"), 0o644))
	dir := NewDir(root)
	ctx := context.Background()

	data, err := dir.Fetch(ctx, "cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, "meow", string(data))

	_, err = dir.Fetch(ctx, "dog.jpg")
	assert.ErrorIs(t, err, ErrAssetNotFound)

	_, err = dir.Fetch(ctx, "../cat.jpg")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}
