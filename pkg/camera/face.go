package camera

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Detection is one face found by YuNet, in pixels.
type Detection struct {
	Box   image.Rectangle
	Score float64
}

// Area returns the box area in pixels.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

// SelectBest picks the face to track from multiple detections.
// Priority: score * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	if len(dets) == 1 {
		return dets[0], true
	}

	maxArea := 0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	best, bestScore := 0, -1.0
	for i, d := range dets {
		score := d.Score * 0.7
		if maxArea > 0 {
			score += float64(d.Area()) / float64(maxArea) * 0.3
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return dets[best], true
}

// faceDetector wraps OpenCV's FaceDetectorYN.
type faceDetector struct {
	det gocv.FaceDetectorYN
}

func newFaceDetector(cfg Config) *faceDetector {
	det := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModel,
		"", // No config file needed for ONNX
		image.Pt(cfg.Width, cfg.Height),
		float32(cfg.ScoreThreshold),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &faceDetector{det: det}
}

// Detect finds faces in img.
func (f *faceDetector) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	f.det.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	f.det.Detect(img, &faces)

	dets := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// YuNet rows: 0-3 box (x, y, w, h), 4-13 five landmarks, 14 score
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		dets = append(dets, Detection{
			Box:   image.Rect(x, y, x+w, y+h),
			Score: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return dets, nil
}

func (f *faceDetector) Close() error {
	f.det.Close()
	return nil
}
