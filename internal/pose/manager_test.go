package pose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type countingUploader struct {
	mu      sync.Mutex
	uploads map[string]int
	fail    bool
}

func (c *countingUploader) UploadImage(_ context.Context, _ []byte, filename, subfolder string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("upload refused")
	}
	if c.uploads == nil {
		c.uploads = make(map[string]int)
	}
	c.uploads[subfolder+"/"+filename]++
	return nil
}

func writePoseSet(t *testing.T, dir string) {
	t.Helper()
	for _, d := range Directions {
		for frame := 0; frame < FramesPerDirection; frame++ {
			path := filepath.Join(dir, Filename(d, frame))
			if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
				t.Fatalf("write pose file: %v", err)
			}
		}
	}
}

func TestEnsureUploadedUploadsFullSetOnce(t *testing.T) {
	dir := t.TempDir()
	writePoseSet(t, dir)
	uploader := &countingUploader{}
	mgr := NewManager(uploader, dir, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = mgr.EnsureUploaded(ctx)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("EnsureUploaded[%d]: %v", i, err)
		}
	}

	if got := len(uploader.uploads); got != len(Directions)*FramesPerDirection {
		t.Fatalf("distinct uploads = %d, want %d", got, len(Directions)*FramesPerDirection)
	}
	for key, count := range uploader.uploads {
		if count != 1 {
			t.Fatalf("%s uploaded %d times, want once", key, count)
		}
	}

	// A later call after success is a no-op.
	if err := mgr.EnsureUploaded(ctx); err != nil {
		t.Fatalf("EnsureUploaded after success: %v", err)
	}
	if uploader.uploads[RemoteSubfolder+"/"+Filename("down", 0)] != 1 {
		t.Fatalf("repeat call re-uploaded files")
	}
}

func TestEnsureUploadedSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	// Only the down row exists locally.
	for frame := 0; frame < FramesPerDirection; frame++ {
		path := filepath.Join(dir, Filename("down", frame))
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			t.Fatalf("write pose file: %v", err)
		}
	}
	uploader := &countingUploader{}
	mgr := NewManager(uploader, dir, zerolog.Nop())

	if err := mgr.EnsureUploaded(context.Background()); err != nil {
		t.Fatalf("EnsureUploaded: %v", err)
	}
	if got := len(uploader.uploads); got != FramesPerDirection {
		t.Fatalf("uploads = %d, want %d", got, FramesPerDirection)
	}
}

func TestEnsureUploadedRetriesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	writePoseSet(t, dir)
	uploader := &countingUploader{fail: true}
	mgr := NewManager(uploader, dir, zerolog.Nop())
	ctx := context.Background()

	if err := mgr.EnsureUploaded(ctx); err == nil {
		t.Fatalf("expected error while uploads fail")
	}
	uploader.fail = false
	if err := mgr.EnsureUploaded(ctx); err != nil {
		t.Fatalf("EnsureUploaded after recovery: %v", err)
	}
}

func TestReferenceFor(t *testing.T) {
	got := ReferenceFor("left", 3)
	want := fmt.Sprintf("%s/pose_left_3.png", RemoteSubfolder)
	if got != want {
		t.Fatalf("ReferenceFor = %q, want %q", got, want)
	}
}
