package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Synthetic frame sources for running without a camera.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
)

type PatternType int

const (
	PatternCheckerboard PatternType = iota
	PatternMovingLine
)

// ParsePatternType maps the --test-pattern flag value.
func ParsePatternType(s string) (PatternType, error) {
	switch s {
	case "checkerboard":
		return PatternCheckerboard, nil
	case "moving-line":
		return PatternMovingLine, nil
	default:
		return 0, fmt.Errorf("unknown test pattern %q (want checkerboard or moving-line)", s)
	}
}

// MockFrameGenerator emits ready-made AsciiFrames, bypassing the
// camera and converter entirely.
type MockFrameGenerator struct {
	w       int
	h       int
	counter int
	pattern PatternType
}

func NewMockFrameGenerator(w int, h int, pattern PatternType) (*MockFrameGenerator, error) {
	if w <= 0 || h <= 0 {
		return nil, ErrBadDimensions
	}

	return &MockFrameGenerator{
		w:       w,
		h:       h,
		pattern: pattern,
	}, nil
}

func (g *MockFrameGenerator) GenerateFrame() *AsciiFrame {
	var frame, _ = NewAsciiFrame(g.w, g.h, ' ')

	switch g.pattern {
	case PatternCheckerboard:
		g.checkerboard(frame)
	case PatternMovingLine:
		g.movingLine(frame)
	}

	g.counter++

	return frame
}

// checkerboard alternates '.' and '#', flipping phase every 5 frames
// so a stalled link is visibly different from a stalled pattern.
func (g *MockFrameGenerator) checkerboard(frame *AsciiFrame) {
	var glyphs = [2]byte{'.', '#'}
	var phase = (g.counter / 5) % 2

	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			frame.SetCell(x, y, glyphs[((x+y)%2+phase)%2])
		}
	}
}

func (g *MockFrameGenerator) movingLine(frame *AsciiFrame) {
	var pos = g.counter % g.h

	for x := 0; x < g.w; x++ {
		frame.SetCell(x, pos, '=')
	}
}
