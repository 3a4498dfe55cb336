package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/e7canasta/orion-wellness/internal/types"
)

// FrameSaver writes frames to disk as PNG or JPEG, optionally outlining a
// detected face box. Safe for concurrent use.
type FrameSaver struct {
	outputDir   string
	format      string
	jpegQuality int

	framesSaved   atomic.Uint64
	framesDropped atomic.Uint64
}

// NewFrameSaver creates outputDir if needed. format is "png" or "jpeg".
func NewFrameSaver(outputDir, format string, jpegQuality int) (*FrameSaver, error) {
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("unsupported format: %s (must be png or jpeg)", format)
	}
	if format == "jpeg" && (jpegQuality < 1 || jpegQuality > 100) {
		return nil, fmt.Errorf("invalid JPEG quality %d (must be 1-100)", jpegQuality)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FrameSaver{outputDir: outputDir, format: format, jpegQuality: jpegQuality}, nil
}

// Save writes frame as frame_{seq:06d}_{timestamp}.{ext} and returns the
// path. A non-nil box is outlined in green.
func (fs *FrameSaver) Save(frame types.Frame, box *types.BoundingBox) (string, error) {
	img, err := ToImage(frame)
	if err != nil {
		fs.framesDropped.Add(1)
		return "", err
	}
	if box != nil {
		outline(img, *box, color.RGBA{G: 0xff, A: 0xff})
	}

	name := fmt.Sprintf("frame_%06d_%s.%s",
		frame.Seq,
		frame.Timestamp.Format("20060102_150405.000"),
		fs.format)
	path := filepath.Join(fs.outputDir, name)

	file, err := os.Create(path)
	if err != nil {
		fs.framesDropped.Add(1)
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch fs.format {
	case "png":
		err = png.Encode(file, img)
	case "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: fs.jpegQuality})
	}
	if err != nil {
		fs.framesDropped.Add(1)
		return "", fmt.Errorf("%s encode failed: %w", fs.format, err)
	}

	fs.framesSaved.Add(1)
	return path, nil
}

// Stats returns current save statistics.
func (fs *FrameSaver) Stats() (saved, dropped uint64) {
	return fs.framesSaved.Load(), fs.framesDropped.Load()
}

// ToImage copies an RGBA frame into an image.RGBA.
func ToImage(frame types.Frame) (*image.RGBA, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("invalid frame: %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Data))
	}
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	copy(img.Pix, frame.Data)
	return img, nil
}

func outline(img *image.RGBA, box types.BoundingBox, c color.RGBA) {
	r := image.Rect(int(box.X), int(box.Y), int(box.X+box.Width), int(box.Y+box.Height)).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, c)
		img.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, c)
		img.SetRGBA(r.Max.X-1, y, c)
	}
}
