package webapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/imageflow/facepoi/internal/entity"
	"github.com/imageflow/facepoi/internal/usecase"
	"github.com/imageflow/facepoi/pkg/types/errs"
)

// ImageStore talks to the image-storage HTTP API. Reads carry an HMAC-SHA256
// access token over the full URL; writes carry a signature over
// method|url|publicKey|timestamp. The client is stateless with respect to
// users: every call is parameterized explicitly, so one instance is safe to
// share across concurrent message handlers.
type ImageStore struct {
	baseURL    string
	publicKey  string
	privateKey string

	client *retryablehttp.Client

	// now is swappable so write-signature tests are deterministic.
	now func() time.Time
}

var _ usecase.ImageStore = (*ImageStore)(nil)

func New(baseURL, publicKey, privateKey string, opts ...Option) *ImageStore {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	s := &ImageStore{
		baseURL:    baseURL,
		publicKey:  publicKey,
		privateKey: privateKey,
		client:     client,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Fetch retrieves the image's binary data, resized server-side to at most
// maxWidth pixels wide.
func (s *ImageStore) Fetch(ctx context.Context, user, identifier string, maxWidth int) ([]byte, error) {
	query := url.Values{}
	query.Set("t[]", fmt.Sprintf("maxSize:width=%d", maxWidth))
	query.Set("publicKey", s.publicKey)

	imageURL := fmt.Sprintf("%s/users/%s/images/%s?%s",
		s.baseURL, url.PathEscape(user), url.PathEscape(identifier), query.Encode())

	body, err := s.get(ctx, s.withAccessToken(imageURL))
	if err != nil {
		return nil, fmt.Errorf("ImageStore - Fetch: %w", err)
	}

	return body, nil
}

// EditMetadata performs a partial metadata update; fields outside the update
// are left untouched by the store.
func (s *ImageStore) EditMetadata(ctx context.Context, user, identifier string, update entity.MetadataUpdate) error {
	metadataURL := fmt.Sprintf("%s/users/%s/images/%s/metadata",
		s.baseURL, url.PathEscape(user), url.PathEscape(identifier))

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("ImageStore - EditMetadata - json.Marshal: %w", err)
	}

	signedURL := s.signWrite(http.MethodPost, metadataURL)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, signedURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ImageStore - EditMetadata - retryablehttp.NewRequestWithContext: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ImageStore - EditMetadata - s.client.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ImageStore - EditMetadata: %w", statusError(resp))
	}

	return nil
}

// ListAccessRules fetches the access-control rules attached to the public key.
func (s *ImageStore) ListAccessRules(ctx context.Context, publicKey string, expandGroups bool) ([]entity.AccessRule, error) {
	query := url.Values{}
	if expandGroups {
		query.Set("expandGroups", "1")
	}

	aclURL := fmt.Sprintf("%s/keys/%s/access", s.baseURL, url.PathEscape(publicKey))
	if encoded := query.Encode(); encoded != "" {
		aclURL += "?" + encoded
	}

	body, err := s.get(ctx, s.withAccessToken(aclURL))
	if err != nil {
		return nil, fmt.Errorf("ImageStore - ListAccessRules: %w", err)
	}

	var rules []entity.AccessRule
	if err := json.Unmarshal(body, &rules); err != nil {
		return nil, fmt.Errorf("ImageStore - ListAccessRules - json.Unmarshal: %w", err)
	}

	return rules, nil
}

// ImageDetails looks up one image's dimensions and metadata. Used by the
// publisher tool to build realistic upload events.
func (s *ImageStore) ImageDetails(ctx context.Context, user, identifier string) (*entity.ImageRef, error) {
	query := url.Values{}
	query.Set("ids[]", identifier)
	query.Set("metadata", "1")

	imagesURL := fmt.Sprintf("%s/users/%s/images?%s", s.baseURL, url.PathEscape(user), query.Encode())

	body, err := s.get(ctx, s.withAccessToken(imagesURL))
	if err != nil {
		return nil, fmt.Errorf("ImageStore - ImageDetails: %w", err)
	}

	var result struct {
		Images []struct {
			ImageIdentifier string          `json:"imageIdentifier"`
			User            string          `json:"user"`
			Width           int             `json:"width"`
			Height          int             `json:"height"`
			Metadata        json.RawMessage `json:"metadata"`
		} `json:"images"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("ImageStore - ImageDetails - json.Unmarshal: %w", err)
	}

	if len(result.Images) == 0 {
		return nil, fmt.Errorf("ImageStore - ImageDetails - `%s` for user `%s`: %w", identifier, user, errs.ErrImageNotFound)
	}

	img := result.Images[0]

	ref := &entity.ImageRef{
		User:       user,
		Identifier: img.ImageIdentifier,
		Width:      img.Width,
		Height:     img.Height,
	}

	if len(img.Metadata) > 0 {
		var meta entity.Metadata
		if err := json.Unmarshal(img.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("ImageStore - ImageDetails - json.Unmarshal metadata: %w", err)
		}

		ref.Metadata = &meta
	}

	return ref, nil
}

func (s *ImageStore) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("retryablehttp.NewRequestWithContext: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("s.client.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll: %w", err)
	}

	return body, nil
}

// withAccessToken appends the read access token: hex HMAC-SHA256 of the full
// URL, keyed by the private key.
func (s *ImageStore) withAccessToken(rawURL string) string {
	mac := hmac.New(sha256.New, []byte(s.privateKey))
	mac.Write([]byte(rawURL))

	separator := "?"
	if containsQuery(rawURL) {
		separator = "&"
	}

	return rawURL + separator + "accessToken=" + hex.EncodeToString(mac.Sum(nil))
}

// signWrite appends signature and timestamp query parameters for write
// operations, signing method|url|publicKey|timestamp.
func (s *ImageStore) signWrite(method, rawURL string) string {
	timestamp := s.now().UTC().Format("2006-01-02T15:04:05Z")

	data := method + "|" + rawURL + "|" + s.publicKey + "|" + timestamp

	mac := hmac.New(sha256.New, []byte(s.privateKey))
	mac.Write([]byte(data))

	query := url.Values{}
	query.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	query.Set("timestamp", timestamp)
	query.Set("publicKey", s.publicKey)

	separator := "?"
	if containsQuery(rawURL) {
		separator = "&"
	}

	return rawURL + separator + query.Encode()
}

func containsQuery(rawURL string) bool {
	return strings.Contains(rawURL, "?")
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	return fmt.Errorf("unexpected status %s: %s", strconv.Itoa(resp.StatusCode), string(body))
}
