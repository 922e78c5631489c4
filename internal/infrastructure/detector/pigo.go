package detector

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"

	"github.com/imageflow/facepoi/internal/entity"
	"github.com/imageflow/facepoi/internal/usecase"
)

const (
	_minFaceSize  = 20
	_maxFaceSize  = 2000
	_shiftFactor  = 0.1
	_scaleFactor  = 1.1
	_clusterIoU   = 0.2
	_qualityScore = 5.0
)

// Detector runs a pigo cascade classifier over image bytes and reports face
// regions as fractions of the decoded image's dimensions.
type Detector struct {
	classifier *pigo.Pigo
}

var _ usecase.FaceDetector = (*Detector)(nil)

// New loads and unpacks the binary cascade file once; the classifier is
// read-only afterwards and safe for concurrent use.
func New(cascadePath string) (*Detector, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("Detector - New - os.ReadFile: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("Detector - New - pigo.Unpack: %w", err)
	}

	return &Detector{classifier: classifier}, nil
}

// Detect decodes the bytes and runs the cascade. Undecodable bytes or an
// image without size are errors; zero detected faces is a valid result.
func (d *Detector) Detect(_ context.Context, data []byte) (*entity.Detection, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("Detector - Detect - imaging.Decode: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width < 1 || height < 1 {
		return nil, fmt.Errorf("Detector - Detect: image has no size")
	}

	pixels := pigo.RgbToGrayscale(imaging.Clone(img))

	params := pigo.CascadeParams{
		MinSize:     _minFaceSize,
		MaxSize:     _maxFaceSize,
		ShiftFactor: _shiftFactor,
		ScaleFactor: _scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   height,
			Cols:   width,
			Dim:    width,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, _clusterIoU)

	faces := make([]entity.FaceBox, 0, len(dets))

	for _, det := range dets {
		if det.Q < _qualityScore {
			continue
		}

		size := float64(det.Scale)
		left := float64(det.Col) - size/2
		top := float64(det.Row) - size/2

		faces = append(faces, entity.FaceBox{
			X:      left / float64(width),
			Y:      top / float64(height),
			CX:     float64(det.Col) / float64(width),
			CY:     float64(det.Row) / float64(height),
			Width:  size / float64(width),
			Height: size / float64(height),
		})
	}

	return &entity.Detection{
		Width:  width,
		Height: height,
		Faces:  faces,
	}, nil
}
