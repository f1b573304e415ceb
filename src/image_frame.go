package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Raw video frames as delivered by the capture process.
 *
 * Description:	An ImageFrame is a contiguous row-major RGB24 buffer.
 *		The capture collaborator overwrites the buffer in place
 *		each frame; everything downstream only reads it.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
)

/* Rec. ITU-R BT.601-7 luma coefficients. */

const (
	RLuminance = 0.2989
	GLuminance = 0.5870
	BLuminance = 0.1140
)

const DefaultBytesPerPixel = 3 // RGB24

type ImageFrame struct {
	W             int
	H             int
	BytesPerPixel int
	buffer        []byte
}

func NewImageFrame(w int, h int, bytesPerPixel int) (*ImageFrame, error) {
	if w <= 0 || h <= 0 || bytesPerPixel <= 0 {
		return nil, fmt.Errorf("image frame dimensions must be greater than zero (got %dx%dx%d)", w, h, bytesPerPixel)
	}

	return &ImageFrame{
		W:             w,
		H:             h,
		BytesPerPixel: bytesPerPixel,
		buffer:        make([]byte, w*h*bytesPerPixel),
	}, nil
}

// Buffer returns the raw image data.  Camera.CaptureFrame copies each
// captured frame into this slice.
func (f *ImageFrame) Buffer() []byte {
	return f.buffer
}

// Pixel returns the RGB values at (x, y), with bounds checking.
func (f *ImageFrame) Pixel(x int, y int) (r byte, g byte, b byte, ok bool) {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return 0, 0, 0, false
	}

	var i = (y*f.W + x) * f.BytesPerPixel
	if i+2 >= len(f.buffer) {
		return 0, 0, 0, false
	}

	return f.buffer[i], f.buffer[i+1], f.buffer[i+2], true
}

// Intensity is the grayscale value (relative luminance) of an RGB pixel,
// on the 0-255 scale.
func Intensity(r byte, g byte, b byte) float64 {
	return RLuminance*float64(r) + GLuminance*float64(g) + BLuminance*float64(b)
}
