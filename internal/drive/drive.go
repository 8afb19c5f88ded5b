// Package drive resolves queue identifiers to image bytes.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ErrAssetNotFound is returned when no file in the container has the requested name.
var ErrAssetNotFound = errors.New("asset not found")

func NewService(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*gdrive.Service, error) {
	const op = "drive.NewService"

	opts = append([]option.ClientOption{
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gdrive.DriveReadonlyScope),
	}, opts...)
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return svc, nil
}

// Folder looks assets up by exact name inside one Drive folder. When several
// files share a name the first one listed is used.
type Folder struct {
	files    *gdrive.FilesService
	folderID string
	logger   zerolog.Logger
}

func NewFolder(svc *gdrive.Service, folderID string, logger zerolog.Logger) *Folder {
	return &Folder{
		files:    svc.Files,
		folderID: folderID,
		logger:   logger.With().Str("folder", folderID).Logger(),
	}
}

func (f *Folder) Fetch(ctx context.Context, identifier string) ([]byte, error) {
	const op = "drive.Folder.Fetch"

	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escape(identifier), escape(f.folderID))
	list, err := f.files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: list %q: %v", op, identifier, err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrAssetNotFound, identifier)
	}
	if len(list.Files) > 1 {
		f.logger.Warn().Str("identifier", identifier).Int("matches", len(list.Files)).Msg("several files share this name, using the first")
	}

	resp, err := f.files.Get(list.Files[0].Id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("%s: download %q: %v", op, identifier, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read %q: %v", op, identifier, err)
	}
	return data, nil
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// Dir serves assets from a local directory.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Fetch(ctx context.Context, identifier string) ([]byte, error) {
	const op = "drive.Dir.Fetch"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	name := filepath.Base(filepath.Clean("/" + identifier))
	if identifier == "" || name != identifier {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrAssetNotFound, identifier)
	}
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrAssetNotFound, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return data, nil
}
