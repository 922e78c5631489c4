package entity

import "strconv"

// POI is a point of interest in pixel space. Width and Height are pointers
// because pre-existing metadata entries may omit them, and deduplication
// treats a size-less entry differently from one with an explicit size.
type POI struct {
	X      int  `json:"x"`
	Y      int  `json:"y"`
	CX     int  `json:"cx,omitempty"`
	CY     int  `json:"cy,omitempty"`
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`
}

// Hash returns the deduplication key: `x|y` when either dimension is missing,
// `x|y|width|height` when both are present.
func (p POI) Hash() string {
	hash := strconv.Itoa(p.X) + "|" + strconv.Itoa(p.Y)

	if p.Width == nil || p.Height == nil {
		return hash
	}

	return hash + "|" + strconv.Itoa(*p.Width) + "|" + strconv.Itoa(*p.Height)
}

// Area returns width*height, with missing dimensions counting as zero.
func (p POI) Area() int {
	if p.Width == nil || p.Height == nil {
		return 0
	}

	return *p.Width * *p.Height
}

// FaceBox is a detected face region, every field a fraction in [0,1] of the
// decoded image's dimensions. X,Y anchor the top-left corner, CX,CY the center.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is the result of running face detection over one image.
// Width and Height are the pixel dimensions of the decoded image and are
// authoritative for converting the fractional boxes to pixel space.
type Detection struct {
	Width  int
	Height int
	Faces  []FaceBox
}
