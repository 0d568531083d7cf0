package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrCancelled is returned by a camera when the user backs out without taking
// a picture.
var ErrCancelled = errors.New("capture cancelled")

// Camera writes full-resolution image data into a file created by the
// selector.
type Camera interface {
	Available() bool
	CaptureTo(ctx context.Context, path string) error
}

// StreamCamera delivers bytes that were already captured elsewhere, e.g. by a
// browser camera input.
type StreamCamera struct {
	src io.Reader
}

func NewStreamCamera(src io.Reader) *StreamCamera {
	return &StreamCamera{src: src}
}

func (c *StreamCamera) Available() bool {
	return c.src != nil
}

func (c *StreamCamera) CaptureTo(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open capture target %s: %w", path, err)
	}
	written, err := io.Copy(dst, c.src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write captured image: %w", err)
	}
	if written == 0 {
		return ErrCancelled
	}
	return nil
}

// PathPlaceholder is replaced with the target file in CommandCamera arguments.
const PathPlaceholder = "{path}"

// CommandCamera runs an external capture tool, for example
// ["libcamera-still", "-n", "-o", "{path}"].
type CommandCamera struct {
	argv []string
}

func NewCommandCamera(argv []string) *CommandCamera {
	return &CommandCamera{argv: argv}
}

func (c *CommandCamera) Available() bool {
	if len(c.argv) == 0 {
		return false
	}
	_, err := exec.LookPath(c.argv[0])
	return err == nil
}

func (c *CommandCamera) CaptureTo(ctx context.Context, path string) error {
	args := make([]string, 0, len(c.argv)-1)
	for _, arg := range c.argv[1:] {
		args = append(args, strings.ReplaceAll(arg, PathPlaceholder, path))
	}

	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		slog.Error("camera command failed", "command", c.argv[0], "error", err, "output", string(output))
		return fmt.Errorf("camera command %s failed: %w", c.argv[0], err)
	}
	return nil
}
