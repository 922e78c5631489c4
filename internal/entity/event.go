package entity

import "encoding/json"

// UploadEvent is the wire schema consumed from the broker. Image is a pointer
// so that a missing `image` property is distinguishable from an empty one.
type UploadEvent struct {
	EventName string    `json:"eventName"`
	Image     *ImageRef `json:"image,omitempty"`
}

// ImageRef identifies an image in the image store. Width and Height are the
// dimensions advertised by the publisher and are treated as advisory only;
// coordinate conversion always uses the dimensions of the bytes actually fetched.
type ImageRef struct {
	User       string    `json:"user"`
	Identifier string    `json:"identifier"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// Metadata carries the image's pre-existing metadata. POI stays raw because a
// non-array value is a data-integrity violation that must be detected, never
// repaired or overwritten.
type Metadata struct {
	POI json.RawMessage `json:"poi,omitempty"`
}

// MetadataUpdate is the partial metadata document written back to the store.
type MetadataUpdate struct {
	POI []POI `json:"poi"`
}
