package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Webcam capture via an ffmpeg child process.
 *
 * Description:	ffmpeg grabs from the platform capture device and
 *		writes raw RGB24 frames, row major with no header, to
 *		its stdout.  We read exactly W*H*3 bytes per frame with
 *		blocking, buffered reads.  The probe/low-latency flags
 *		keep ffmpeg from buffering half a second of video before
 *		the first frame comes out.
 *
 *		An arbitrary capture command can be substituted with
 *		--camera-cmd; it just has to write the same raw RGB24
 *		stream to stdout.
 *
 *----------------------------------------------------------------*/

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/shlex"
)

type Camera struct {
	w    int
	h    int
	proc *exec.Cmd
	rd   io.Reader
	buf  []byte
}

// NewCamera spawns the capture process for w by h frames at the given
// rate.  customCmd, when non-empty, replaces the built-in ffmpeg
// command line entirely.
func NewCamera(w int, h int, fps int, customCmd string) (*Camera, error) {
	if w <= 0 || h <= 0 || fps <= 0 {
		return nil, fmt.Errorf("camera dimensions and frame rate must be greater than zero")
	}

	var cmd *exec.Cmd
	if customCmd != "" {
		var argv, splitErr = shlex.Split(customCmd)
		if splitErr != nil {
			return nil, fmt.Errorf("bad camera command %q: %w", customCmd, splitErr)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("empty camera command")
		}
		cmd = exec.Command(argv[0], argv[1:]...)
	} else {
		var args, argsErr = ffmpegArgs(w, h, fps)
		if argsErr != nil {
			return nil, argsErr
		}

		if _, probeErr := ProbeFFmpeg(); probeErr != nil {
			return nil, probeErr
		}

		cmd = exec.Command("ffmpeg", args...)
	}

	var stdout, pipeErr = cmd.StdoutPipe()
	if pipeErr != nil {
		return nil, fmt.Errorf("capture process stdout: %w", pipeErr)
	}

	if startErr := cmd.Start(); startErr != nil {
		return nil, fmt.Errorf("failed to spawn capture process: %w", startErr)
	}

	var frameBytes = w * h * DefaultBytesPerPixel

	return &Camera{
		w:    w,
		h:    h,
		proc: cmd,
		rd:   bufio.NewReaderSize(stdout, frameBytes),
		buf:  make([]byte, frameBytes),
	}, nil
}

// ProbeFFmpeg checks that ffmpeg is runnable and returns its version
// banner line.
func ProbeFFmpeg() (string, error) {
	var out, err = exec.Command("ffmpeg", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found or not runnable: %w", err)
	}

	var banner, _, _ = strings.Cut(string(out), "\n")

	return banner, nil
}

func ffmpegArgs(w int, h int, fps int) ([]string, error) {
	var size = fmt.Sprintf("%dx%d", w, h)
	var rate = fmt.Sprintf("%d", fps)

	// Output and latency options are the same everywhere; only the
	// grab device differs per platform.
	var tail = []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-probesize", "32",
		"-analyzeduration", "0",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"pipe:1",
	}

	switch runtime.GOOS {
	case "darwin":
		return append([]string{
			"-f", "avfoundation",
			"-framerate", rate,
			"-video_size", size,
			"-pixel_format", "rgb24",
			"-i", "0:none",
		}, tail...), nil
	case "linux":
		return append([]string{
			"-f", "v4l2",
			"-framerate", rate,
			"-video_size", size,
			"-pixel_format", "rgb24",
			"-i", "/dev/video0",
		}, tail...), nil
	case "windows":
		return append([]string{
			"-f", "dshow",
			"-framerate", rate,
			"-video_size", size,
			"-vcodec", "mjpeg",
			"-i", "video=USB2.0 HD UVC WebCam",
		}, tail...), nil
	default:
		return nil, fmt.Errorf("no capture support for %s", runtime.GOOS)
	}
}

// CaptureFrame blocks until a full frame has been read from the
// capture process, then copies it into frame.
func (c *Camera) CaptureFrame(frame *ImageFrame) error {
	if frame.W != c.w || frame.H != c.h {
		return fmt.Errorf("%w: frame %dx%d, camera %dx%d", ErrDimensionMismatch, frame.W, frame.H, c.w, c.h)
	}

	if _, err := io.ReadFull(c.rd, c.buf); err != nil {
		return fmt.Errorf("failed to read camera frame: %w", err)
	}

	copy(frame.Buffer(), c.buf)

	return nil
}

func (c *Camera) Dimensions() (int, int) {
	return c.w, c.h
}

// Close kills the capture process and reaps it.
func (c *Camera) Close() error {
	if err := c.proc.Process.Kill(); err != nil {
		return err
	}

	_ = c.proc.Wait()

	return nil
}
