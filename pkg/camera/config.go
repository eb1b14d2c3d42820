// Package camera reads webcam frames with gocv and reduces them to eye
// landmarks for the blink producer.
//
// Each frame goes through two networks: YuNet finds the face box, then a
// 68-point landmark network runs on the square crop around it. Points 36-41
// and 42-47 of the 68-point layout are the two eyes.
package camera

import "os"

// Config holds webcam and model settings.
type Config struct {
	// === Capture ===
	Device    int `json:"device" yaml:"device"`       // V4L / AVFoundation index
	Width     int `json:"width" yaml:"width"`         // Requested frame width
	Height    int `json:"height" yaml:"height"`       // Requested frame height
	Framerate int `json:"framerate" yaml:"framerate"` // Requested FPS

	// === Face detection (YuNet) ===
	FaceModel      string  `json:"face_model" yaml:"face_model"`
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`

	// === Landmarks ===
	// LandmarkModel is an ONNX network taking a LandmarkSize square RGB crop
	// scaled to [0,1] and returning 136 values: x,y pairs for the 68 points,
	// normalised to the crop.
	LandmarkModel string  `json:"landmark_model" yaml:"landmark_model"`
	LandmarkSize  int     `json:"landmark_size" yaml:"landmark_size"`
	CropMargin    float64 `json:"crop_margin" yaml:"crop_margin"` // Face box growth before cropping
}

// DefaultConfig returns 640x480 at 30 fps with models under models/.
func DefaultConfig() Config {
	return Config{
		Device:         0,
		Width:          640,
		Height:         480,
		Framerate:      30,
		FaceModel:      "models/face_detection_yunet.onnx",
		ScoreThreshold: 0.6,
		LandmarkModel:  "models/face_landmarks_68.onnx",
		LandmarkSize:   112,
		CropMargin:     0.2,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must not be negative")
	}
	if c.Width < 160 || c.Width > 4096 {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > 2160 {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.ScoreThreshold <= 0 || c.ScoreThreshold >= 1 {
		errors = append(errors, "score_threshold must be between 0 and 1")
	}
	if c.LandmarkSize < 32 {
		errors = append(errors, "landmark_size must be at least 32")
	}
	if c.CropMargin < 0 || c.CropMargin > 1 {
		errors = append(errors, "crop_margin must be between 0 and 1")
	}
	if c.FaceModel == "" {
		errors = append(errors, "face_model is required")
	}
	if c.LandmarkModel == "" {
		errors = append(errors, "landmark_model is required")
	}

	return errors
}

// missingModel returns the first model path that cannot be read, or "".
func (c *Config) missingModel() string {
	for _, p := range []string{c.FaceModel, c.LandmarkModel} {
		if _, err := os.Stat(p); err != nil {
			return p
		}
	}
	return ""
}
