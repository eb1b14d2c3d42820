package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/sensor"
)

// Webcam is a sensor.FrameSource backed by a local camera.
type Webcam struct {
	cfg  Config
	log  *slog.Logger
	cap  *gocv.VideoCapture
	face *faceDetector
	mark *landmarkNet
	img  gocv.Mat

	mu     sync.Mutex // Protects inference and Close
	closed bool
}

// Open acquires the camera and loads both models. Failures wrap
// sensor.ErrUnavailable.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Webcam, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %s", strings.Join(errs, "; "))
	}
	if log == nil {
		log = slog.Default()
	}
	if p := cfg.missingModel(); p != "" {
		return nil, fmt.Errorf("%w: model file not found: %s", sensor.ErrUnavailable, p)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", sensor.ErrUnavailable, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d not opened", sensor.ErrUnavailable, cfg.Device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	mark, err := newLandmarkNet(cfg)
	if err != nil {
		vc.Close()
		return nil, fmt.Errorf("%w: %v", sensor.ErrUnavailable, err)
	}

	log.Info("camera opened", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height)
	return &Webcam{
		cfg:  cfg,
		log:  log.With("component", "camera"),
		cap:  vc,
		face: newFaceDetector(cfg),
		mark: mark,
		img:  gocv.NewMat(),
	}, nil
}

// Opener returns a sensor.FrameOpener for cfg.
func Opener(cfg Config, log *slog.Logger) sensor.FrameOpener {
	return func(ctx context.Context) (sensor.FrameSource, error) {
		return Open(ctx, cfg, log)
	}
}

// NextFrame grabs a frame and extracts eye landmarks from the best face.
func (w *Webcam) NextFrame(ctx context.Context) (sensor.Frame, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Frame{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return sensor.Frame{}, sensor.ErrUnavailable
	}
	if ok := w.cap.Read(&w.img); !ok || w.img.Empty() {
		return sensor.Frame{}, sensor.ErrNoFrame
	}
	frame := sensor.Frame{CapturedAt: time.Now()}

	dets, err := w.face.Detect(w.img)
	if err != nil {
		return sensor.Frame{}, fmt.Errorf("%w: %v", sensor.ErrNoFrame, err)
	}
	best, ok := SelectBest(dets)
	if !ok {
		return frame, nil
	}

	crop := squareCrop(best.Box, w.cfg.CropMargin, image.Rect(0, 0, w.img.Cols(), w.img.Rows()))
	if crop.Empty() {
		return frame, nil
	}
	left, right, err := w.mark.Eyes(w.img, crop)
	if err != nil {
		w.log.Debug("landmarks failed", "error", err)
		return frame, nil
	}

	frame.Face = true
	frame.Left = left
	frame.Right = right
	return frame, nil
}

// Close releases the camera and both models.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.face.Close()
	w.mark.Close()
	w.img.Close()
	err := w.cap.Close()
	w.log.Info("camera released")
	return err
}
