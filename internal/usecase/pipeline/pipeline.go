package pipeline

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/imageflow/facepoi/internal/entity"
	"github.com/imageflow/facepoi/internal/usecase"
	"github.com/imageflow/facepoi/pkg/logger"
)

// Pipeline handles upload events: filter, authorize, fetch, detect,
// reconcile, persist. Every failure is absorbed where it happens and turned
// into a log record plus an early return; one message never affects another.
type Pipeline struct {
	store    usecase.ImageStore
	detector usecase.FaceDetector
	users    entity.UserSet
	events   map[string]struct{}
	maxWidth int

	logger logger.Interface
}

var _ usecase.MessagePipeline = (*Pipeline)(nil)

func New(
	store usecase.ImageStore,
	detector usecase.FaceDetector,
	users entity.UserSet,
	events []string,
	maxWidth int,
	l logger.Interface,
) *Pipeline {
	allowed := make(map[string]struct{}, len(events))
	for _, event := range events {
		allowed[event] = struct{}{}
	}

	return &Pipeline{
		store:    store,
		detector: detector,
		users:    users,
		events:   allowed,
		maxWidth: maxWidth,
		logger:   l,
	}
}

// Handle processes one event. Fire-and-forget: outcomes are observed through
// the log stream, matching at-most-once consumption.
func (p *Pipeline) Handle(ctx context.Context, event entity.UploadEvent) {
	if _, ok := p.events[event.EventName]; !ok {
		p.logger.Trace("message was not in event name filter (`%s`)", event.EventName)

		return
	}

	if event.Image == nil {
		p.logger.Trace("message did not have an `image`-property, skipping")

		return
	}

	image := event.Image

	if !p.users.Wildcard() && !p.users.Contains(image.User) {
		p.logger.Trace("user `%s` is not in the authorized user set, skipping", image.User)

		return
	}

	data, err := p.store.Fetch(ctx, image.User, image.Identifier, p.maxWidth)
	if err != nil {
		p.logger.Error(err, "Pipeline - Handle - p.store.Fetch")

		return
	}

	detection, err := p.detector.Detect(ctx, data)
	if err != nil {
		p.logger.Error(err, "Pipeline - Handle - p.detector.Detect")

		return
	}

	if len(detection.Faces) == 0 {
		p.logger.Trace("no faces found in image `%s/%s`", image.User, image.Identifier)

		return
	}

	existing, ok := existingPOIs(image)
	if !ok {
		p.logger.Info("`metadata.poi` was not an array, skipping (`%s/%s`)", image.User, image.Identifier)

		return
	}

	pois := Reconcile(detection.Faces, existing, detection.Width, detection.Height)

	err = p.store.EditMetadata(ctx, image.User, image.Identifier, entity.MetadataUpdate{POI: pois})
	if err != nil {
		p.logger.Error(err, "Pipeline - Handle - p.store.EditMetadata")

		return
	}

	p.logger.Trace("metadata updated (event `%s`, image `%s/%s`)", event.EventName, image.User, image.Identifier)
}

// existingPOIs extracts the pre-existing POI list. A present but non-array
// value (or array of non-POI values) reports false: the pipeline must never
// coerce or overwrite it.
func existingPOIs(image *entity.ImageRef) ([]entity.POI, bool) {
	if image.Metadata == nil || len(image.Metadata.POI) == 0 {
		return nil, true
	}

	raw := bytes.TrimSpace(image.Metadata.POI)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}

	if raw[0] != '[' {
		return nil, false
	}

	var pois []entity.POI
	if err := json.Unmarshal(raw, &pois); err != nil {
		return nil, false
	}

	return pois, true
}
