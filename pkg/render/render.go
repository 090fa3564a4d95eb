// Package render projects simulation snapshots into images, GIFs and
// terminal frames. Nothing here mutates simulation state.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/colornames"

	"github.com/boristopalov/gridplan/pkg/core"
)

// palette indices
const (
	freeIndex uint8 = iota
	obstacleIndex
	goalIndex
	agentIndex
)

var palette = color.Palette{
	colornames.White,
	colornames.Lightgray,
	colornames.Limegreen,
	colornames.Mediumblue,
}

// Frame draws s with each cell as a scale x scale square
func Frame(s core.Snapshot, scale int) *image.Paletted {
	if scale < 1 {
		scale = 1
	}
	h, w := s.Grid.Height(), s.Grid.Width()
	img := image.NewPaletted(image.Rect(0, 0, w*scale, h*scale), palette)

	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			idx := freeIndex
			switch s.Grid.At(core.Position{Row: r, Col: c}) {
			case core.Obstacle:
				idx = obstacleIndex
			case core.Goal:
				idx = goalIndex
			}
			fillCell(img, r, c, scale, idx)
		}
	}
	for _, id := range s.AgentIDs {
		p := s.Agents[id]
		fillCell(img, p.Row, p.Col, scale, agentIndex)
	}
	return img
}

func fillCell(img *image.Paletted, r, c, scale int, idx uint8) {
	for y := r * scale; y < (r+1)*scale; y++ {
		for x := c * scale; x < (c+1)*scale; x++ {
			img.SetColorIndex(x, y, idx)
		}
	}
}

// SavePNG writes a single frame
func SavePNG(path string, img image.Image) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("render: encode %s: %w", path, err)
	}
	return f.Close()
}

// SaveGIF writes frames as an animation; delay is in hundredths of a second
func SaveGIF(path string, frames []*image.Paletted, delay int) error {
	if len(frames) == 0 {
		return fmt.Errorf("render: no frames for %s", path)
	}
	f, err := create(path)
	if err != nil {
		return err
	}
	if err := EncodeGIF(f, frames, delay); err != nil {
		f.Close()
		return fmt.Errorf("render: encode %s: %w", path, err)
	}
	return f.Close()
}

func EncodeGIF(w io.Writer, frames []*image.Paletted, delay int) error {
	anim := &gif.GIF{
		Image: frames,
		Delay: make([]int, len(frames)),
	}
	for i := range anim.Delay {
		anim.Delay[i] = delay
	}
	return gif.EncodeAll(w, anim)
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("render: create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("render: create %s: %w", path, err)
	}
	return f, nil
}
