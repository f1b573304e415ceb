package asciicall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVideoConfig_IsValid(t *testing.T) {
	var config = DefaultVideoConfig()
	assert.NoError(t, config.Validate())
}

func TestVideoConfig_Validation(t *testing.T) {
	var config = DefaultVideoConfig()
	config.CameraWidth = 0
	assert.Error(t, config.Validate())

	config = DefaultVideoConfig()
	config.FPS = 0
	assert.Error(t, config.Validate())

	config = DefaultVideoConfig()
	config.Contrast = -1
	assert.Error(t, config.Validate())

	config = DefaultVideoConfig()
	config.Brightness = -2
	assert.Error(t, config.Validate())

	config = DefaultVideoConfig()
	config.ShadingGlyphs = ""
	assert.Error(t, config.Validate())

	// Non-ASCII glyphs can't survive the one-byte wire format.
	config = DefaultVideoConfig()
	config.ForwardGlyphs = "╱"
	assert.Error(t, config.Validate())
}

func TestLoadVideoConfig_FileOverridesDefaults(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "asciicall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contrast: 2.0\nfps: 15\nshading_glyphs: \" .#\"\n"), 0o644))

	var config, err = LoadVideoConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2.0, config.Contrast)
	assert.Equal(t, 15, config.FPS)
	assert.Equal(t, " .#", config.ShadingGlyphs)

	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultCameraWidth, config.CameraWidth)
}

func TestLoadVideoConfig_MissingExplicitPathFails(t *testing.T) {
	var _, err = LoadVideoConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadVideoConfig_BadYAMLFails(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "asciicall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contrast: [not a number"), 0o644))

	var _, err = LoadVideoConfig(path)
	assert.Error(t, err)
}

func TestLoadVideoConfig_InvalidValuesRejected(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "asciicall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brightness: 3.0\n"), 0o644))

	var _, err = LoadVideoConfig(path)
	assert.Error(t, err)
}
