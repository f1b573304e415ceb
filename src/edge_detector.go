package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Sobel edge detection with non-maximum suppression.
 *
 * Description:	The detector runs one worker goroutine.  Callers submit
 *		raw RGB frames; the worker computes per-pixel gradient
 *		magnitude and angle and publishes the result.  The input
 *		slot holds at most one frame: submitting while the worker
 *		is busy overwrites the previous submission, so a slow
 *		worker always processes the most recent frame.  Readers
 *		always observe a complete (magnitude, angle) pair.
 *
 *		Processing steps:
 *
 *		1. Grayscale intensity map (BT.601 luma).
 *		2. 3x3 Sobel kernels.  Border pixels get Gx = Gy = 0.
 *		3. magnitude = sqrt(Gx^2 + Gy^2), angle = atan2(Gy, Gx).
 *		4. Non-maximum suppression along the gradient direction,
 *		   with magnitudes below the threshold suppressed.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
	"math"
	"sync"
)

const DefaultEdgeThreshold = 20.0

var ErrDimensionMismatch = fmt.Errorf("frame dimensions do not match detector configuration")

// EdgeInfo holds the detector output for one frame.  Both slices are
// row major over the source image, magnitude on the 0-255 intensity
// scale and angle in radians.
type EdgeInfo struct {
	Magnitude []float64
	Angle     []float64
	W         int
	H         int
}

type EdgeDetector struct {
	w         int
	h         int
	threshold float64

	mu      sync.Mutex
	pending []byte // most recently submitted frame, nil when consumed
	latest  EdgeInfo

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func NewEdgeDetector(w int, h int, threshold float64) (*EdgeDetector, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("edge detector dimensions must be greater than zero (got %dx%d)", w, h)
	}

	var d = &EdgeDetector{
		w:         w,
		h:         h,
		threshold: threshold,
		latest: EdgeInfo{
			Magnitude: make([]float64, w*h),
			Angle:     make([]float64, w*h),
			W:         w,
			H:         h,
		},
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go d.worker()

	return d, nil
}

// SubmitFrame hands a frame to the worker.  The buffer is copied, so
// the caller may immediately reuse the frame.  A frame submitted while
// the worker is busy replaces any prior unprocessed submission.
func (d *EdgeDetector) SubmitFrame(frame *ImageFrame) error {
	if frame.W != d.w || frame.H != d.h {
		return fmt.Errorf("%w: frame %dx%d, detector %dx%d", ErrDimensionMismatch, frame.W, frame.H, d.w, d.h)
	}

	d.mu.Lock()
	if d.pending == nil {
		d.pending = make([]byte, len(frame.Buffer()))
	}
	copy(d.pending, frame.Buffer())
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default: // worker already has a wakeup queued
	}

	return nil
}

// EdgeInfo returns a snapshot of the most recent result.
func (d *EdgeDetector) EdgeInfo() EdgeInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out = EdgeInfo{
		Magnitude: make([]float64, len(d.latest.Magnitude)),
		Angle:     make([]float64, len(d.latest.Angle)),
		W:         d.latest.W,
		H:         d.latest.H,
	}
	copy(out.Magnitude, d.latest.Magnitude)
	copy(out.Angle, d.latest.Angle)

	return out
}

// Stop terminates the worker.  Safe to call once.
func (d *EdgeDetector) Stop() {
	close(d.quit)
	<-d.done
}

func (d *EdgeDetector) worker() {
	defer close(d.done)

	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
		}

		d.mu.Lock()
		var buf = d.pending
		d.pending = nil
		d.mu.Unlock()

		if buf == nil {
			continue
		}

		var frame = ImageFrame{W: d.w, H: d.h, BytesPerPixel: DefaultBytesPerPixel, buffer: buf}
		var magnitude, angle = processFrame(&frame, d.threshold)

		d.mu.Lock()
		d.latest.Magnitude = magnitude
		d.latest.Angle = angle
		d.mu.Unlock()
	}
}

func processFrame(frame *ImageFrame, threshold float64) (magnitude []float64, angle []float64) {
	var intensity = intensityMap(frame)
	var gx, gy = sobel(intensity, frame.W, frame.H)

	magnitude = make([]float64, frame.W*frame.H)
	angle = make([]float64, frame.W*frame.H)

	for i := range gx {
		magnitude[i] = math.Sqrt(gx[i]*gx[i] + gy[i]*gy[i])
		angle[i] = math.Atan2(gy[i], gx[i])
	}

	magnitude = nonMaximumSuppression(magnitude, angle, frame.W, frame.H, threshold)

	return magnitude, angle
}

func intensityMap(frame *ImageFrame) []float64 {
	var intensity = make([]float64, frame.W*frame.H)

	for y := 0; y < frame.H; y++ {
		for x := 0; x < frame.W; x++ {
			if r, g, b, ok := frame.Pixel(x, y); ok {
				intensity[y*frame.W+x] = Intensity(r, g, b)
			}
		}
	}

	return intensity
}

/*
 * Standard 3x3 Sobel kernels:
 *
 *	Gx = [ -1 0 1 ]		Gy = [ -1 -2 -1 ]
 *	     [ -2 0 2 ]		     [  0  0  0 ]
 *	     [ -1 0 1 ]		     [  1  2  1 ]
 *
 * The first and last row and column stay zero.  No padding, no wrap.
 */
func sobel(intensity []float64, w int, h int) (gx []float64, gy []float64) {
	gx = make([]float64, w*h)
	gy = make([]float64, w*h)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var i = y*w + x

			gx[i] = -1*intensity[(y-1)*w+(x-1)] +
				1*intensity[(y-1)*w+(x+1)] +
				-2*intensity[y*w+(x-1)] +
				2*intensity[y*w+(x+1)] +
				-1*intensity[(y+1)*w+(x-1)] +
				1*intensity[(y+1)*w+(x+1)]

			gy[i] = -1*intensity[(y-1)*w+(x-1)] +
				-2*intensity[(y-1)*w+x] +
				-1*intensity[(y-1)*w+(x+1)] +
				1*intensity[(y+1)*w+(x-1)] +
				2*intensity[(y+1)*w+x] +
				1*intensity[(y+1)*w+(x+1)]
		}
	}

	return gx, gy
}

// gradientBin classifies an angle (radians) into one of the four
// orientation bins after normalizing to [0, 180) degrees.
type gradientBin int

const (
	binHorizontal gradientBin = iota // [0, 22.5) or [157.5, 180)
	binForward                       // [22.5, 67.5)
	binVertical                      // [67.5, 112.5)
	binBack                          // [112.5, 157.5)
)

func classifyAngle(angle float64) gradientBin {
	var deg = math.Mod(angle*180/math.Pi, 180)
	if deg < 0 {
		deg += 180
	}

	switch {
	case deg < 22.5 || deg >= 157.5:
		return binHorizontal
	case deg < 67.5:
		return binForward
	case deg < 112.5:
		return binVertical
	default:
		return binBack
	}
}

// nonMaximumSuppression thins edges to single-pixel ridges.  A pixel
// survives only if its magnitude meets the threshold and is not less
// than either neighbor along the gradient direction.
func nonMaximumSuppression(magnitude []float64, angle []float64, w int, h int, threshold float64) []float64 {
	var result = make([]float64, w*h)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var i = y*w + x

			if magnitude[i] < threshold {
				continue
			}

			var nx1, ny1, nx2, ny2 int
			switch classifyAngle(angle[i]) {
			case binHorizontal:
				nx1, ny1, nx2, ny2 = x+1, y, x-1, y
			case binForward:
				nx1, ny1, nx2, ny2 = x+1, y-1, x-1, y+1
			case binVertical:
				nx1, ny1, nx2, ny2 = x, y-1, x, y+1
			case binBack:
				nx1, ny1, nx2, ny2 = x-1, y-1, x+1, y+1
			}

			if magnitude[i] >= magnitude[ny1*w+nx1] && magnitude[i] >= magnitude[ny2*w+nx2] {
				result[i] = magnitude[i]
			}
		}
	}

	return result
}
