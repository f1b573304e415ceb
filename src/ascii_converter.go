package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Turn raw RGB frames into character grids.
 *
 * Description:	Each output cell nearest-neighbor samples the source
 *		image.  Where the edge detector reports a gradient
 *		magnitude above the threshold, the cell gets a
 *		directional glyph chosen by the gradient orientation;
 *		everywhere else it gets a shading glyph indexed by the
 *		pixel's luma after contrast and brightness adjustment.
 *
 *		The gradient direction is perpendicular to the visible
 *		edge, so the glyph family for the "horizontal" gradient
 *		bin contains vertical strokes, and vice versa.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
)

/* Default glyph families.  All printable ASCII so that frames survive
 * the one-byte-per-cell wire format unchanged. */

const (
	DefaultShadingGlyphs    = " .:coPO?@#"
	DefaultHorizontalGlyphs = "|" // horizontal gradient: vertical stroke
	DefaultVerticalGlyphs   = "-" // vertical gradient: horizontal stroke
	DefaultForwardGlyphs    = "/"
	DefaultBackGlyphs       = "\\"

	DefaultContrast   = 1.5
	DefaultBrightness = 0.0
)

type AsciiConverter struct {
	detector *EdgeDetector

	shading    []byte
	horizontal []byte
	vertical   []byte
	forward    []byte
	back       []byte

	edgeThreshold float64
	contrast      float64
	brightness    float64
}

type ConverterConfig struct {
	Shading    string
	Horizontal string
	Vertical   string
	Forward    string
	Back       string

	EdgeThreshold float64
	Contrast      float64
	Brightness    float64
}

func DefaultConverterConfig() ConverterConfig {
	return ConverterConfig{
		Shading:       DefaultShadingGlyphs,
		Horizontal:    DefaultHorizontalGlyphs,
		Vertical:      DefaultVerticalGlyphs,
		Forward:       DefaultForwardGlyphs,
		Back:          DefaultBackGlyphs,
		EdgeThreshold: DefaultEdgeThreshold,
		Contrast:      DefaultContrast,
		Brightness:    DefaultBrightness,
	}
}

// NewAsciiConverter starts the edge detection worker for source frames
// of w by h pixels.  Call Close when done with it.
func NewAsciiConverter(w int, h int, config ConverterConfig) (*AsciiConverter, error) {
	for _, family := range []string{config.Shading, config.Horizontal, config.Vertical, config.Forward, config.Back} {
		if len(family) == 0 {
			return nil, fmt.Errorf("every glyph family needs at least one glyph")
		}
	}

	if config.Contrast < 0 {
		return nil, fmt.Errorf("contrast must be >= 0 (got %g)", config.Contrast)
	}

	if config.Brightness < -1 || config.Brightness > 1 {
		return nil, fmt.Errorf("brightness must be within [-1, 1] (got %g)", config.Brightness)
	}

	var detector, detectorErr = NewEdgeDetector(w, h, config.EdgeThreshold)
	if detectorErr != nil {
		return nil, detectorErr
	}

	return &AsciiConverter{
		detector:      detector,
		shading:       []byte(config.Shading),
		horizontal:    []byte(config.Horizontal),
		vertical:      []byte(config.Vertical),
		forward:       []byte(config.Forward),
		back:          []byte(config.Back),
		edgeThreshold: config.EdgeThreshold,
		contrast:      config.Contrast,
		brightness:    config.Brightness,
	}, nil
}

func (c *AsciiConverter) Close() {
	c.detector.Stop()
}

/*------------------------------------------------------------------
 *
 * Name:        Convert
 *
 * Purpose:     Fill an AsciiFrame from an ImageFrame.
 *
 * Description:	The source frame goes to the edge detector first; the
 *		conversion then uses whatever edge result is current.
 *		The detector lags by up to one frame, which is invisible
 *		at video rates.
 *
 *----------------------------------------------------------------*/

func (c *AsciiConverter) Convert(src *ImageFrame, dst *AsciiFrame) error {
	if err := c.detector.SubmitFrame(src); err != nil {
		return err
	}

	var edges = c.detector.EdgeInfo()

	for y := 0; y < dst.H; y++ {
		for x := 0; x < dst.W; x++ {
			var sx = min(x*src.W/dst.W, src.W-1)
			var sy = min(y*src.H/dst.H, src.H-1)
			var ei = sy*edges.W + sx

			if ei < len(edges.Magnitude) && edges.Magnitude[ei] > c.edgeThreshold {
				dst.SetCell(x, y, c.edgeGlyph(edges.Angle[ei], edges.Magnitude[ei]))
				continue
			}

			var r, g, b, ok = src.Pixel(sx, sy)
			if !ok {
				continue
			}

			r, g, b = c.adjustPixel(r, g, b)

			var luma = Intensity(r, g, b)
			var i = min(int(luma/256*float64(len(c.shading))), len(c.shading)-1)

			dst.SetCell(x, y, c.shading[i])
		}
	}

	return nil
}

// adjustPixel applies contrast and brightness to each channel:
// v' = clamp((v - 0.5) * contrast + 0.5 + brightness, 0, 1).
func (c *AsciiConverter) adjustPixel(r byte, g byte, b byte) (byte, byte, byte) {
	var apply = func(value byte) byte {
		var v = float64(value) / 255
		v = (v-0.5)*c.contrast + 0.5 + c.brightness
		v = max(0, min(1, v))
		return byte(v * 255)
	}

	return apply(r), apply(g), apply(b)
}

// edgeGlyph picks the directional glyph for a gradient.  Magnitude
// selects the glyph within the family.
func (c *AsciiConverter) edgeGlyph(angle float64, magnitude float64) byte {
	var family []byte
	switch classifyAngle(angle) {
	case binHorizontal:
		family = c.horizontal
	case binForward:
		family = c.forward
	case binVertical:
		family = c.vertical
	case binBack:
		family = c.back
	}

	var i = min(int(magnitude/255*float64(len(family))), len(family)-1)

	return family[i]
}
