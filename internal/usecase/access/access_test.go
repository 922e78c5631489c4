package access

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imageflow/facepoi/internal/entity"
)

type stubStore struct {
	rules []entity.AccessRule
	err   error
}

func (s *stubStore) ListAccessRules(ctx context.Context, publicKey string, expandGroups bool) ([]entity.AccessRule, error) {
	return s.rules, s.err
}

func (s *stubStore) Fetch(ctx context.Context, user, identifier string, maxWidth int) ([]byte, error) {
	return nil, nil
}

func (s *stubStore) EditMetadata(ctx context.Context, user, identifier string, update entity.MetadataUpdate) error {
	return nil
}

func (s *stubStore) ImageDetails(ctx context.Context, user, identifier string) (*entity.ImageRef, error) {
	return nil, nil
}

type recordingLogger struct {
	warns []string
}

func (l *recordingLogger) Trace(message string, args ...interface{}) {}
func (l *recordingLogger) Debug(message interface{}, args ...interface{}) {}
func (l *recordingLogger) Info(message string, args ...interface{})  {}
func (l *recordingLogger) Warn(message string, args ...interface{}) {
	l.warns = append(l.warns, fmt.Sprintf(message, args...))
}
func (l *recordingLogger) Error(message interface{}, args ...interface{}) {}
func (l *recordingLogger) Fatal(message interface{}, args ...interface{}) {}

func rule(resources []string, users interface{}) entity.AccessRule {
	r := entity.AccessRule{Resources: resources}

	switch u := users.(type) {
	case string:
		if u != "*" {
			panic("unsupported users string")
		}

		r.Users = entity.UserList{Wildcard: true}
	case []string:
		r.Users = entity.UserList{Users: u}
	default:
		panic("unsupported users type")
	}

	return r
}

func TestResolveIntersectsPerResourceGrants(t *testing.T) {
	store := &stubStore{rules: []entity.AccessRule{
		rule([]string{"image.get"}, []string{"a", "b"}),
		rule([]string{"metadata.post"}, []string{"a"}),
	}}
	log := &recordingLogger{}

	users, err := New(store, "pubkey", log).Resolve(context.Background())

	require.NoError(t, err)
	assert.False(t, users.Wildcard())
	assert.True(t, users.Contains("a"))
	assert.False(t, users.Contains("b"))

	// `b` only holds one of the two grants and must be named in a warning.
	require.NotEmpty(t, log.warns)
	assert.Contains(t, log.warns[0], "users: [b]")
}

func TestResolveWildcardBothResources(t *testing.T) {
	store := &stubStore{rules: []entity.AccessRule{
		rule([]string{"image.get", "metadata.post"}, "*"),
	}}
	log := &recordingLogger{}

	users, err := New(store, "pubkey", log).Resolve(context.Background())

	require.NoError(t, err)
	assert.True(t, users.Wildcard())
	assert.Empty(t, log.warns)
}

func TestResolveWildcardIntersectedWithListYieldsList(t *testing.T) {
	store := &stubStore{rules: []entity.AccessRule{
		rule([]string{"image.get"}, "*"),
		rule([]string{"metadata.post"}, []string{"a", "b"}),
	}}
	log := &recordingLogger{}

	users, err := New(store, "pubkey", log).Resolve(context.Background())

	require.NoError(t, err)
	assert.False(t, users.Wildcard())
	assert.Equal(t, []string{"a", "b"}, users.Users())

	// The non-wildcard metadata.post accumulator triggers a rejection warning.
	require.NotEmpty(t, log.warns)
}

func TestResolveWildcardIsSticky(t *testing.T) {
	store := &stubStore{rules: []entity.AccessRule{
		rule([]string{"image.get", "metadata.post"}, "*"),
		rule([]string{"image.get", "metadata.post"}, []string{"a"}),
	}}
	log := &recordingLogger{}

	users, err := New(store, "pubkey", log).Resolve(context.Background())

	require.NoError(t, err)
	assert.True(t, users.Wildcard())
}

func TestResolveFailsWhenResourceHasNoGrants(t *testing.T) {
	store := &stubStore{rules: []entity.AccessRule{
		rule([]string{"other"}, "*"),
	}}
	log := &recordingLogger{}

	_, err := New(store, "pubkey", log).Resolve(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoAuthorizedUsers))
}

func TestResolveFailsOnDisjointGrants(t *testing.T) {
	store := &stubStore{rules: []entity.AccessRule{
		rule([]string{"image.get"}, []string{"a"}),
		rule([]string{"metadata.post"}, []string{"b"}),
	}}
	log := &recordingLogger{}

	_, err := New(store, "pubkey", log).Resolve(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoAuthorizedUsers))
}

func TestResolvePropagatesQueryFailure(t *testing.T) {
	store := &stubStore{err: errors.New("store down")}
	log := &recordingLogger{}

	_, err := New(store, "pubkey", log).Resolve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestResolveAccumulatesAcrossMultipleRules(t *testing.T) {
	store := &stubStore{rules: []entity.AccessRule{
		rule([]string{"image.get"}, []string{"a"}),
		rule([]string{"image.get"}, []string{"b"}),
		rule([]string{"metadata.post"}, []string{"b", "a"}),
	}}
	log := &recordingLogger{}

	users, err := New(store, "pubkey", log).Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, users.Users())
}
