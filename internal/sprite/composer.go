package sprite

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"spriteforge/internal/domain"
)

// Sheet is a composed sprite sheet plus its measured geometry.
type Sheet struct {
	PNG         []byte
	Width       int
	Height      int
	FrameWidth  int
	FrameHeight int
}

// Compose lays frames out row-major on a cols x rows grid. Every frame must
// decode to the same dimensions; the first frame sets the cell size.
func Compose(frames [][]byte, cols, rows int) (*Sheet, error) {
	if len(frames) != cols*rows {
		return nil, fmt.Errorf("compose: got %d frames, grid needs %d", len(frames), cols*rows)
	}
	decoded := make([]image.Image, len(frames))
	var fw, fh int
	for i, raw := range frames {
		img, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("compose: decode frame %d: %w", i, err)
		}
		b := img.Bounds()
		if i == 0 {
			fw, fh = b.Dx(), b.Dy()
		} else if b.Dx() != fw || b.Dy() != fh {
			return nil, fmt.Errorf("%w: frame %d is %dx%d, expected %dx%d",
				domain.ErrInconsistentFrameSize, i, b.Dx(), b.Dy(), fw, fh)
		}
		decoded[i] = img
	}

	sheet := image.NewRGBA(image.Rect(0, 0, cols*fw, rows*fh))
	for i, img := range decoded {
		x := (i % cols) * fw
		y := (i / cols) * fh
		draw.Draw(sheet, image.Rect(x, y, x+fw, y+fh), img, img.Bounds().Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, sheet); err != nil {
		return nil, fmt.Errorf("compose: encode sheet: %w", err)
	}
	return &Sheet{
		PNG:         buf.Bytes(),
		Width:       cols * fw,
		Height:      rows * fh,
		FrameWidth:  fw,
		FrameHeight: fh,
	}, nil
}

// Thumbnail scales a PNG down to targetWidth with nearest-neighbor sampling,
// which keeps pixel art crisp. Images already at or below the target are
// returned unchanged.
func Thumbnail(data []byte, targetWidth int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("thumbnail: decode: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= targetWidth {
		return data, nil
	}
	targetHeight := b.Dy() * targetWidth / b.Dx()
	if targetHeight < 1 {
		targetHeight = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	for y := 0; y < targetHeight; y++ {
		srcY := b.Min.Y + y*b.Dy()/targetHeight
		for x := 0; x < targetWidth; x++ {
			srcX := b.Min.X + x*b.Dx()/targetWidth
			out.Set(x, y, img.At(srcX, srcY))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("thumbnail: encode: %w", err)
	}
	return buf.Bytes(), nil
}
