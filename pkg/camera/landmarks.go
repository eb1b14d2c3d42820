package camera

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/ear"
)

// landmarkCount is the number of points in the 68-point layout.
const landmarkCount = 68

// Eye index ranges in the 68-point layout, subject's perspective.
var (
	rightEyeIdx = [6]int{36, 37, 38, 39, 40, 41}
	leftEyeIdx  = [6]int{42, 43, 44, 45, 46, 47}
)

var errLandmarkOutput = errors.New("camera: unexpected landmark output size")

// squareCrop grows box by margin on each side, makes it square around its
// centre and clips it to bounds.
func squareCrop(box image.Rectangle, margin float64, bounds image.Rectangle) image.Rectangle {
	side := box.Dx()
	if box.Dy() > side {
		side = box.Dy()
	}
	side = int(float64(side) * (1 + 2*margin))
	c := image.Pt((box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2)
	r := image.Rect(c.X-side/2, c.Y-side/2, c.X-side/2+side, c.Y-side/2+side)
	return r.Intersect(bounds)
}

// eyesFromLandmarks maps normalised crop coordinates back to image pixels
// and extracts both eyes. out holds x,y pairs.
func eyesFromLandmarks(out []float32, crop image.Rectangle) (left, right ear.Eye, err error) {
	if len(out) < 2*landmarkCount {
		return left, right, fmt.Errorf("%w: got %d values", errLandmarkOutput, len(out))
	}
	w, h := float64(crop.Dx()), float64(crop.Dy())
	point := func(i int) ear.Point {
		return ear.Point{
			X: float64(crop.Min.X) + float64(out[2*i])*w,
			Y: float64(crop.Min.Y) + float64(out[2*i+1])*h,
		}
	}
	for k := range leftEyeIdx {
		left[k] = point(leftEyeIdx[k])
		right[k] = point(rightEyeIdx[k])
	}
	return left, right, nil
}

// landmarkNet runs the 68-point network on face crops.
type landmarkNet struct {
	net  gocv.Net
	size int
}

func newLandmarkNet(cfg Config) (*landmarkNet, error) {
	net := gocv.ReadNet(cfg.LandmarkModel, "")
	if net.Empty() {
		return nil, fmt.Errorf("load landmark model %s", cfg.LandmarkModel)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &landmarkNet{net: net, size: cfg.LandmarkSize}, nil
}

// Eyes returns both eyes for the face inside crop.
func (l *landmarkNet) Eyes(img gocv.Mat, crop image.Rectangle) (left, right ear.Eye, err error) {
	roi := img.Region(crop)
	defer roi.Close()

	blob := gocv.BlobFromImage(roi, 1.0/255, image.Pt(l.size, l.size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	l.net.SetInput(blob, "")
	out := l.net.Forward("")
	defer out.Close()

	vals, err := out.DataPtrFloat32()
	if err != nil {
		return left, right, fmt.Errorf("read landmark output: %w", err)
	}
	return eyesFromLandmarks(vals, crop)
}

func (l *landmarkNet) Close() error {
	return l.net.Close()
}
