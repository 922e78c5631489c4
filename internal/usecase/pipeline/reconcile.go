package pipeline

import (
	"math"
	"sort"

	"github.com/imageflow/facepoi/internal/entity"
)

// Reconcile converts detected face boxes to pixel-space POIs, merges them
// with the pre-existing list and returns the deduplicated result sorted by
// bounding area, largest first.
//
// Existing POIs are prepended unchanged and win over newly detected
// duplicates. The top-left corner is clamped to the image bounds; center and
// size are accepted as computed. Zero-area entries are kept. The function is
// pure and idempotent on its own output.
func Reconcile(faces []entity.FaceBox, existing []entity.POI, imageWidth, imageHeight int) []entity.POI {
	pois := make([]entity.POI, 0, len(existing)+len(faces))
	pois = append(pois, existing...)

	for _, face := range faces {
		x := clamp(round(float64(imageWidth)*face.X), imageWidth)
		y := clamp(round(float64(imageHeight)*face.Y), imageHeight)
		w := round(float64(imageWidth) * face.Width)
		h := round(float64(imageHeight) * face.Height)

		pois = append(pois, entity.POI{
			X:      x,
			Y:      y,
			CX:     round(float64(x) + float64(w)/2),
			CY:     round(float64(y) + float64(h)/2),
			Width:  &w,
			Height: &h,
		})
	}

	deduped := pois[:0]
	seen := make(map[string]struct{}, len(pois))

	for _, poi := range pois {
		hash := poi.Hash()
		if _, ok := seen[hash]; ok {
			continue
		}

		seen[hash] = struct{}{}
		deduped = append(deduped, poi)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Area() > deduped[j].Area()
	})

	return deduped
}

func round(v float64) int {
	return int(math.Round(v))
}

func clamp(v, max int) int {
	if v > max {
		return max
	}

	return v
}
