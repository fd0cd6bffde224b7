package audio

import (
	"errors"
	"strconv"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for S16LE stereo capture to stdout.
	BuildArgs func(device string) []string

	// List describes how to enumerate input devices.
	List DeviceListConfig
}

// CaptureCommand is a resolved capture invocation.
type CaptureCommand struct {
	Name   string
	Args   []string
	Device string
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, it falls back to the platform default and then to the first
// detected device. ffmpegPath overrides the command on platforms that capture with FFmpeg.
func BuildCaptureCommand(device, ffmpegPath string) (CaptureCommand, error) {
	cfg := platformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Windows has no safe default.
	if device == "" {
		devices := parseDeviceList(cfg.List)
		if len(devices) == 0 {
			return CaptureCommand{}, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	name := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		name = ffmpegPath
	}

	return CaptureCommand{Name: name, Args: cfg.BuildArgs(device), Device: device}, nil
}

// buildFFmpegCaptureArgs constructs FFmpeg arguments for raw PCM capture to stdout.
func buildFFmpegCaptureArgs(inputFormat, device string, extra ...string) []string {
	args := []string{"-f", inputFormat, "-i", device}
	args = append(args, extra...)
	return append(args,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(types.Channels),
		"-ar", strconv.Itoa(types.SampleRate),
		"pipe:1",
	)
}
