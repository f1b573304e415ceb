package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Video profile configuration.
 *
 * Description:	Everything has a sensible default; a YAML profile can
 *		override any of it.  The file is looked for along a
 *		short search list unless a path is given explicitly:
 *
 *			asciicall.yaml			current directory
 *			~/.config/asciicall/asciicall.yaml
 *			/etc/asciicall/asciicall.yaml
 *
 *		The ASCII grid defaults to the current terminal size so
 *		the call fills the window; when stdout is not a
 *		terminal the classic 120x40 is used.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCameraWidth  = 640
	DefaultCameraHeight = 480
	DefaultAsciiWidth   = 120
	DefaultAsciiHeight  = 40
	DefaultFPS          = 30
)

var videoConfigSearchList = []string{
	"asciicall.yaml",
	"~/.config/asciicall/asciicall.yaml",
	"/etc/asciicall/asciicall.yaml",
}

type VideoConfig struct {
	CameraWidth  int `yaml:"camera_width"`
	CameraHeight int `yaml:"camera_height"`
	AsciiWidth   int `yaml:"ascii_width"`
	AsciiHeight  int `yaml:"ascii_height"`
	FPS          int `yaml:"fps"`

	EdgeThreshold float64 `yaml:"edge_threshold"`
	Contrast      float64 `yaml:"contrast"`
	Brightness    float64 `yaml:"brightness"`

	ShadingGlyphs    string `yaml:"shading_glyphs"`
	HorizontalGlyphs string `yaml:"horizontal_glyphs"`
	VerticalGlyphs   string `yaml:"vertical_glyphs"`
	ForwardGlyphs    string `yaml:"forward_glyphs"`
	BackGlyphs       string `yaml:"back_glyphs"`
}

func DefaultVideoConfig() VideoConfig {
	var asciiW, asciiH = terminalGridSize()

	return VideoConfig{
		CameraWidth:      DefaultCameraWidth,
		CameraHeight:     DefaultCameraHeight,
		AsciiWidth:       asciiW,
		AsciiHeight:      asciiH,
		FPS:              DefaultFPS,
		EdgeThreshold:    DefaultEdgeThreshold,
		Contrast:         DefaultContrast,
		Brightness:       DefaultBrightness,
		ShadingGlyphs:    DefaultShadingGlyphs,
		HorizontalGlyphs: DefaultHorizontalGlyphs,
		VerticalGlyphs:   DefaultVerticalGlyphs,
		ForwardGlyphs:    DefaultForwardGlyphs,
		BackGlyphs:       DefaultBackGlyphs,
	}
}

// terminalGridSize fits the ASCII grid to the terminal, leaving one
// row so the final newline doesn't scroll the frame.
func terminalGridSize() (int, int) {
	var ws, err = unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 || ws.Row <= 1 {
		return DefaultAsciiWidth, DefaultAsciiHeight
	}

	return int(ws.Col), int(ws.Row) - 1
}

// LoadVideoConfig reads a profile from path, or from the search list
// when path is empty.  Absence of a profile is not an error; the
// defaults are used.
func LoadVideoConfig(path string) (VideoConfig, error) {
	var config = DefaultVideoConfig()

	var candidates []string
	if path != "" {
		candidates = []string{path}
	} else {
		candidates = videoConfigSearchList
	}

	for _, candidate := range candidates {
		if home, homeErr := os.UserHomeDir(); homeErr == nil && len(candidate) > 1 && candidate[0] == '~' {
			candidate = filepath.Join(home, candidate[2:])
		}

		var data, readErr = os.ReadFile(candidate)
		if readErr != nil {
			if path != "" {
				return config, fmt.Errorf("can't read config %q: %w", path, readErr)
			}
			continue
		}

		if yamlErr := yaml.Unmarshal(data, &config); yamlErr != nil {
			return config, fmt.Errorf("bad config %q: %w", candidate, yamlErr)
		}

		break
	}

	return config, config.Validate()
}

func (c *VideoConfig) Validate() error {
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return fmt.Errorf("camera dimensions must be greater than zero (got %dx%d)", c.CameraWidth, c.CameraHeight)
	}

	if c.AsciiWidth <= 0 || c.AsciiHeight <= 0 {
		return fmt.Errorf("ascii dimensions must be greater than zero (got %dx%d)", c.AsciiWidth, c.AsciiHeight)
	}

	if c.FPS <= 0 {
		return fmt.Errorf("fps must be greater than zero (got %d)", c.FPS)
	}

	if c.Contrast < 0 {
		return fmt.Errorf("contrast must be >= 0 (got %g)", c.Contrast)
	}

	if c.Brightness < -1 || c.Brightness > 1 {
		return fmt.Errorf("brightness must be within [-1, 1] (got %g)", c.Brightness)
	}

	for _, family := range []string{c.ShadingGlyphs, c.HorizontalGlyphs, c.VerticalGlyphs, c.ForwardGlyphs, c.BackGlyphs} {
		if family == "" {
			return fmt.Errorf("glyph families must not be empty")
		}
		for i := 0; i < len(family); i++ {
			if family[i] < 0x20 || family[i] > 0x7e {
				return fmt.Errorf("glyph %q is outside printable ASCII; it would not survive the wire format", family[i])
			}
		}
	}

	return nil
}

// ConverterConfig extracts the converter's slice of the profile.
func (c *VideoConfig) ConverterConfig() ConverterConfig {
	return ConverterConfig{
		Shading:       c.ShadingGlyphs,
		Horizontal:    c.HorizontalGlyphs,
		Vertical:      c.VerticalGlyphs,
		Forward:       c.ForwardGlyphs,
		Back:          c.BackGlyphs,
		EdgeThreshold: c.EdgeThreshold,
		Contrast:      c.Contrast,
		Brightness:    c.Brightness,
	}
}
