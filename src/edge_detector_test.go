package asciicall

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A solid black image has no gradients anywhere: every magnitude is
// exactly zero, including the untouched borders.
func TestProcessFrame_AllBlack(t *testing.T) {
	var frame, err = NewImageFrame(16, 16, 3)
	require.NoError(t, err)

	var magnitude, angle = processFrame(frame, DefaultEdgeThreshold)

	require.Len(t, magnitude, 16*16)
	require.Len(t, angle, 16*16)

	for i, m := range magnitude {
		assert.Zerof(t, m, "magnitude[%d]", i)
	}
}

// A hard vertical step produces a horizontal gradient along the
// boundary columns and nothing anywhere else.
func TestProcessFrame_VerticalStep(t *testing.T) {
	var frame, err = NewImageFrame(8, 8, 3)
	require.NoError(t, err)

	var buf = frame.Buffer()
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			var i = (y*8 + x) * 3
			buf[i], buf[i+1], buf[i+2] = 255, 255, 255
		}
	}

	var magnitude, angle = processFrame(frame, DefaultEdgeThreshold)

	for y := 1; y < 7; y++ {
		assert.Positivef(t, magnitude[y*8+3], "boundary column at row %d", y)
		assert.Zerof(t, magnitude[y*8+1], "flat region at row %d", y)
		assert.Zerof(t, magnitude[y*8+6], "flat region at row %d", y)

		// Gradient points straight along +x.
		assert.InDelta(t, 0, angle[y*8+3], 1e-9)
	}

	// Borders always stay zero; Sobel never reaches them.
	for x := 0; x < 8; x++ {
		assert.Zero(t, magnitude[x])
		assert.Zero(t, magnitude[7*8+x])
	}
}

// Suppression drops interior pixels that are below a strictly larger
// neighbor along the gradient direction.
func TestNonMaximumSuppression_ThinsRidge(t *testing.T) {
	const w, h = 5, 3

	var magnitude = make([]float64, w*h)
	var angle = make([]float64, w*h) // all zero: horizontal gradient

	// One row with a clear peak at x=2.
	magnitude[1*w+1] = 50
	magnitude[1*w+2] = 100
	magnitude[1*w+3] = 50

	var result = nonMaximumSuppression(magnitude, angle, w, h, 20)

	assert.Zero(t, result[1*w+1])
	assert.Equal(t, 100.0, result[1*w+2])
	assert.Zero(t, result[1*w+3])
}

func TestNonMaximumSuppression_ThresholdApplies(t *testing.T) {
	const w, h = 3, 3

	var magnitude = make([]float64, w*h)
	var angle = make([]float64, w*h)

	magnitude[1*w+1] = 10 // local max, but weak

	var result = nonMaximumSuppression(magnitude, angle, w, h, 20)

	assert.Zero(t, result[1*w+1])
}

func TestClassifyAngle_Bins(t *testing.T) {
	var deg = func(d float64) float64 { return d * math.Pi / 180 }

	assert.Equal(t, binHorizontal, classifyAngle(deg(0)))
	assert.Equal(t, binHorizontal, classifyAngle(deg(10)))
	assert.Equal(t, binHorizontal, classifyAngle(deg(170)))
	assert.Equal(t, binHorizontal, classifyAngle(deg(-10))) // normalizes to 170
	assert.Equal(t, binForward, classifyAngle(deg(22.5)))
	assert.Equal(t, binForward, classifyAngle(deg(45)))
	assert.Equal(t, binVertical, classifyAngle(deg(90)))
	assert.Equal(t, binVertical, classifyAngle(deg(67.5)))
	assert.Equal(t, binBack, classifyAngle(deg(135)))
	assert.Equal(t, binBack, classifyAngle(deg(112.5)))
}

func TestEdgeDetector_DimensionMismatch(t *testing.T) {
	var detector, err = NewEdgeDetector(8, 8, DefaultEdgeThreshold)
	require.NoError(t, err)
	defer detector.Stop()

	var frame, frameErr = NewImageFrame(4, 4, 3)
	require.NoError(t, frameErr)

	assert.ErrorIs(t, detector.SubmitFrame(frame), ErrDimensionMismatch)
}

// The worker picks up submissions asynchronously; the reader sees the
// processed result shortly after.
func TestEdgeDetector_SubmitAndRead(t *testing.T) {
	var detector, err = NewEdgeDetector(8, 8, DefaultEdgeThreshold)
	require.NoError(t, err)
	defer detector.Stop()

	var frame, frameErr = NewImageFrame(8, 8, 3)
	require.NoError(t, frameErr)

	var buf = frame.Buffer()
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			var i = (y*8 + x) * 3
			buf[i], buf[i+1], buf[i+2] = 255, 255, 255
		}
	}

	require.NoError(t, detector.SubmitFrame(frame))

	assert.Eventually(t, func() bool {
		var info = detector.EdgeInfo()
		return info.Magnitude[3*8+3] > 0
	}, time.Second, 5*time.Millisecond)
}
