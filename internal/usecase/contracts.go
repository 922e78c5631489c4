package usecase

import (
	"context"

	"github.com/imageflow/facepoi/internal/entity"
)

type (
	// ImageStore is the image-storage collaborator. Every call takes the user
	// explicitly; the client holds no per-user state, so concurrent handlers
	// can share one instance.
	ImageStore interface {
		Fetch(ctx context.Context, user, identifier string, maxWidth int) ([]byte, error)
		EditMetadata(ctx context.Context, user, identifier string, update entity.MetadataUpdate) error
		ListAccessRules(ctx context.Context, publicKey string, expandGroups bool) ([]entity.AccessRule, error)
		ImageDetails(ctx context.Context, user, identifier string) (*entity.ImageRef, error)
	}

	// FaceDetector is the black-box classifier. It fails when the bytes are
	// not a decodable image or the image has no size; zero faces is a valid
	// result, not an error.
	FaceDetector interface {
		Detect(ctx context.Context, data []byte) (*entity.Detection, error)
	}

	// AccessResolver computes the set of users the pipeline may operate on.
	// Resolved exactly once, before consumption starts.
	AccessResolver interface {
		Resolve(ctx context.Context) (entity.UserSet, error)
	}

	// MessagePipeline handles one upload event, fire-and-forget; all outcomes
	// are observed through logging. Deliveries for the same image may race:
	// callers needing per-identifier serialization can wrap this interface
	// with a decorator keyed by (user, identifier).
	MessagePipeline interface {
		Handle(ctx context.Context, event entity.UploadEvent)
	}
)
