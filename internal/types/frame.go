package types

import "time"

// BytesPerPixel is the stride of a packed RGBA pixel.
const BytesPerPixel = 4

// Frame is a single sampled camera frame.
//
// Data holds packed RGBA pixels, row-major, BytesPerPixel bytes each.
// Consumers must treat Data as read-only once the frame has been published.
type Frame struct {
	Seq          uint64
	Timestamp    time.Time
	Width        int
	Height       int
	Data         []byte
	SourceStream string
	TraceID      string
}

// Valid reports whether the frame has positive dimensions and enough pixel
// data to cover them.
func (f Frame) Valid() bool {
	if f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return len(f.Data) >= f.Width*f.Height*BytesPerPixel
}

// Pixel returns the RGB components of the pixel at (x, y). Alpha is ignored.
// The caller must ensure the coordinates lie inside a Valid frame.
func (f Frame) Pixel(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * BytesPerPixel
	return f.Data[i], f.Data[i+1], f.Data[i+2]
}

// BoundingBox is an axis-aligned rectangle in frame pixel coordinates.
type BoundingBox struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// Area returns Width*Height.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// CenterY returns the vertical center of the box.
func (b BoundingBox) CenterY() float64 {
	return b.Y + b.Height/2
}
