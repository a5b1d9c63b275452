package sprite

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// bgTolerance is the max per-channel distance from a corner color for a
// pixel to count as background.
const bgTolerance = 30

// RemoveBackground flood-fills from all four corners, clearing pixels whose
// color stays within tolerance of that corner's color, then feathers the one
// pixel wide rim around the cleared region. Interior regions of the same
// color survive because only corner-connected pixels are cleared.
func RemoveBackground(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("remove background: decode: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	cleared := make([]bool, w*h)
	corners := [][2]int{{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1}}
	for _, c := range corners {
		floodClear(img, cleared, c[0], c[1])
	}

	for i, hit := range cleared {
		if hit {
			img.Pix[i*4+3] = 0
		}
	}
	feather(img, cleared)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("remove background: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func floodClear(img *image.NRGBA, cleared []bool, startX, startY int) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if startX < 0 || startY < 0 || startX >= w || startY >= h {
		return
	}
	ref := pixelAt(img, startX, startY)
	stack := [][2]int{{startX, startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := p[0], p[1]
		if x < 0 || y < 0 || x >= w || y >= h {
			continue
		}
		idx := y*w + x
		if cleared[idx] {
			continue
		}
		if !withinTolerance(pixelAt(img, x, y), ref) {
			continue
		}
		cleared[idx] = true
		stack = append(stack, [2]int{x + 1, y}, [2]int{x - 1, y}, [2]int{x, y + 1}, [2]int{x, y - 1})
	}
}

func pixelAt(img *image.NRGBA, x, y int) [3]int {
	off := img.PixOffset(x, y)
	return [3]int{int(img.Pix[off]), int(img.Pix[off+1]), int(img.Pix[off+2])}
}

func withinTolerance(p, ref [3]int) bool {
	for i := 0; i < 3; i++ {
		d := p[i] - ref[i]
		if d < 0 {
			d = -d
		}
		if d > bgTolerance {
			return false
		}
	}
	return true
}

// feather halves the alpha of kept pixels that border a cleared pixel,
// softening the cutout edge.
func feather(img *image.NRGBA, cleared []bool) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if cleared[idx] {
				continue
			}
			edge := (x > 0 && cleared[idx-1]) ||
				(x < w-1 && cleared[idx+1]) ||
				(y > 0 && cleared[idx-w]) ||
				(y < h-1 && cleared[idx+w])
			if edge {
				off := idx*4 + 3
				img.Pix[off] /= 2
			}
		}
	}
}
