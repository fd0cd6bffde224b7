package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/types"
	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// ExecOpener returns an Opener that runs the platform capture command for device.
// An empty device selects the platform default.
func ExecOpener(device, ffmpegPath string) Opener {
	return func(ctx context.Context) (Stream, error) {
		c, err := audio.BuildCaptureCommand(device, ffmpegPath)
		if err != nil {
			return nil, err
		}

		slog.Info("starting audio capture", "command", c.Name, "input", c.Device)

		cmd := exec.CommandContext(ctx, c.Name, c.Args...)
		cmd.Cancel = func() error {
			return util.GracefulSignal(cmd.Process)
		}
		cmd.WaitDelay = types.ShutdownTimeout

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}

		stream := &execStream{cmd: cmd, stdout: stdout, device: c.Device}
		cmd.Stderr = &stream.stderr

		if err := cmd.Start(); err != nil {
			return nil, util.WrapError("start "+c.Name, err)
		}
		return stream, nil
	}
}

type execStream struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr bytes.Buffer
	device string
}

func (s *execStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *execStream) Name() string { return s.device }

// Wait reports the capture's last stderr line along with a non-zero exit.
func (s *execStream) Wait() error {
	err := s.cmd.Wait()
	if err == nil {
		return nil
	}
	if msg := util.ExtractLastError(s.stderr.String()); msg != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return err
}
