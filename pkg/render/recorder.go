package render

import (
	"image"

	"github.com/boristopalov/gridplan/pkg/core"
)

// Recorder collects a frame per rendered snapshot and optionally echoes
// it to a terminal
type Recorder struct {
	scale    int
	frames   []*image.Paletted
	terminal *Terminal
}

func NewRecorder(scale int, terminal *Terminal) *Recorder {
	return &Recorder{scale: scale, terminal: terminal}
}

func (r *Recorder) Render(s core.Snapshot) error {
	r.frames = append(r.frames, Frame(s, r.scale))
	if r.terminal != nil {
		return r.terminal.Render(s)
	}
	return nil
}

func (r *Recorder) Frames() []*image.Paletted {
	return r.frames
}

// Reset drops recorded frames, e.g. between episodes
func (r *Recorder) Reset() {
	r.frames = nil
}
