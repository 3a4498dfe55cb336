package worker

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-wellness/internal/types"
)

// maxMessageSize bounds a single framed message (a 1080p RGBA frame plus
// headroom).
const maxMessageSize = 16 << 20

// Request is sent to the detector process for every frame.
type Request struct {
	ID        uint64 `msgpack:"id"`
	FrameData []byte `msgpack:"frame_data"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Format    string `msgpack:"format"`
	TraceID   string `msgpack:"trace_id"`
	Timestamp string `msgpack:"timestamp"`
}

// Face is one detection reported by the process.
type Face struct {
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	Width  float64 `msgpack:"width"`
	Height float64 `msgpack:"height"`
	Score  float64 `msgpack:"score"`
}

// Box returns the face rectangle.
func (f Face) Box() types.BoundingBox {
	return types.BoundingBox{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// Response is the process's answer to a Request with the same ID.
type Response struct {
	ID     uint64             `msgpack:"id"`
	Faces  []Face             `msgpack:"faces"`
	Error  string             `msgpack:"error,omitempty"`
	Timing map[string]float64 `msgpack:"timing,omitempty"`
}

// writeMessage writes v as a 4-byte big-endian length followed by msgpack.
func writeMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack message: %w", err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write msgpack data: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("failed to read msgpack data (expected %d bytes): %w", n, err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack message: %w", err)
	}
	return nil
}

// bestFace returns the highest scoring face at or above minScore.
func bestFace(faces []Face, minScore float64) (types.BoundingBox, bool) {
	best := -1
	for i, f := range faces {
		if f.Score < minScore || f.Width <= 0 || f.Height <= 0 {
			continue
		}
		if best < 0 || f.Score > faces[best].Score {
			best = i
		}
	}
	if best < 0 {
		return types.BoundingBox{}, false
	}
	return faces[best].Box(), true
}
