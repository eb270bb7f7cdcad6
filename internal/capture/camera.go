package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os/exec"
	"sync"

	"github.com/gen2brain/heic"

	"github.com/zombor/receipt-capture/internal/scanning"
)

// CameraFilename names payloads captured from a camera frame
const CameraFilename = "camera-capture.jpg"

const jpegQuality = 90

// ErrCameraUnavailable is returned when no camera can be opened
var ErrCameraUnavailable = errors.New("camera unavailable")

// Camera opens a live video stream
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open camera. Close releases every track.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// WithCamera opens the camera for the duration of fn and always releases it,
// including when fn fails or panics.
func WithCamera(ctx context.Context, cam Camera, fn func(Stream) error) (err error) {
	stream, err := cam.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("releasing camera: %w", cerr)
		}
	}()
	return fn(stream)
}

// CaptureFrame grabs one frame and stages it as a JPEG payload
func CaptureFrame(ctx context.Context, cam Camera) (Payload, error) {
	var p Payload
	err := WithCamera(ctx, cam, func(s Stream) error {
		img, err := s.Frame(ctx)
		if err != nil {
			return fmt.Errorf("capturing frame: %w", err)
		}
		p, err = EncodeFrame(img)
		return err
	})
	return p, err
}

// EncodeFrame rasterizes a frame to a JPEG payload
func EncodeFrame(img image.Image) (Payload, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Payload{}, fmt.Errorf("encoding frame: %w", err)
	}
	return NewPayload(buf.Bytes(), "image/jpeg", CameraFilename), nil
}

// CommandCamera captures stills by running an external program that writes
// one image to stdout, for example
// `ffmpeg -f v4l2 -i /dev/video0 -frames:v 1 -f image2 -`.
type CommandCamera struct {
	Path string
	Args []string
}

// Open checks that the capture program exists
func (c CommandCamera) Open(_ context.Context) (Stream, error) {
	if c.Path == "" {
		return nil, errors.New("no capture command configured")
	}
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, err
	}
	return &commandStream{path: path, args: c.Args}, nil
}

type commandStream struct {
	path string
	args []string

	mu      sync.Mutex
	running *exec.Cmd
	closed  bool
}

func (s *commandStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("camera closed")
	}
	cmd := exec.CommandContext(ctx, s.path, s.args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	s.running = cmd
	s.mu.Unlock()

	err := cmd.Run()

	s.mu.Lock()
	s.running = nil
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("running capture command: %w", err)
	}
	return decodeFrame(out.Bytes())
}

func (s *commandStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.running != nil && s.running.Process != nil {
		return s.running.Process.Kill()
	}
	return nil
}

func decodeFrame(data []byte) (image.Image, error) {
	if scanning.IsHEIC(data, "") {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC frame: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}
