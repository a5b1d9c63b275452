package pose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"spriteforge/internal/infra"
)

// Directions in sheet row order: down is row 0, up is row 3.
var Directions = []string{"down", "left", "right", "up"}

// FramesPerDirection is the walk-cycle length.
const FramesPerDirection = 8

// RemoteSubfolder is where pose references live on the server's input tree.
const RemoteSubfolder = "sprite-poses"

// Uploader is the slice of the compute client the manager needs.
type Uploader interface {
	UploadImage(ctx context.Context, data []byte, filename, subfolder string) error
}

// Manager pushes the local pose reference set to the server at most once
// per process. Concurrent callers share a single upload pass.
type Manager struct {
	client   Uploader
	dir      string
	logger   infra.Logger
	group    singleflight.Group
	uploaded atomic.Bool
}

func NewManager(client Uploader, dir string, logger infra.Logger) *Manager {
	return &Manager{client: client, dir: dir, logger: logger}
}

// Filename returns the canonical pose file name for a direction and frame.
func Filename(direction string, frame int) string {
	return fmt.Sprintf("pose_%s_%d.png", direction, frame)
}

// ReferenceFor returns the server-side path a LoadImage node should use.
func ReferenceFor(direction string, frame int) string {
	return RemoteSubfolder + "/" + Filename(direction, frame)
}

// EnsureUploaded uploads all pose references, once. Later calls return the
// cached verdict; calls racing the first upload wait for it rather than
// re-uploading.
func (m *Manager) EnsureUploaded(ctx context.Context) error {
	if m.uploaded.Load() {
		return nil
	}
	_, err, _ := m.group.Do("upload", func() (any, error) {
		if m.uploaded.Load() {
			return nil, nil
		}
		if err := m.uploadAll(ctx); err != nil {
			return nil, err
		}
		m.uploaded.Store(true)
		return nil, nil
	})
	return err
}

func (m *Manager) uploadAll(ctx context.Context) error {
	var sent, missing int
	for _, dir := range Directions {
		for frame := 0; frame < FramesPerDirection; frame++ {
			name := Filename(dir, frame)
			data, err := os.ReadFile(filepath.Join(m.dir, name))
			if err != nil {
				if os.IsNotExist(err) {
					// A missing pose file degrades that frame to unguided
					// generation; it should not sink the whole set.
					m.logger.Warn().Str("file", name).Msg("pose: reference missing locally, skipping")
					missing++
					continue
				}
				return fmt.Errorf("pose: read %s: %w", name, err)
			}
			if err := m.client.UploadImage(ctx, data, name, RemoteSubfolder); err != nil {
				return fmt.Errorf("pose: upload %s: %w", name, err)
			}
			sent++
		}
	}
	m.logger.Info().Int("uploaded", sent).Int("missing", missing).Msg("pose: reference set uploaded")
	return nil
}
