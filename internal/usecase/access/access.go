package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/imageflow/facepoi/internal/entity"
	"github.com/imageflow/facepoi/internal/usecase"
	"github.com/imageflow/facepoi/pkg/logger"
)

// Resources the pipeline needs on every user it operates on: it reads the
// image and writes its metadata.
const (
	ResourceImageGet     = "image.get"
	ResourceMetadataPost = "metadata.post"
)

// ErrNoAuthorizedUsers means the configured public key holds both required
// grants for no user at all. The process must not start consuming.
var ErrNoAuthorizedUsers = errors.New("no users with access to both required resources")

type Resolver struct {
	store     usecase.ImageStore
	publicKey string
	logger    logger.Interface
}

var _ usecase.AccessResolver = (*Resolver)(nil)

func New(store usecase.ImageStore, publicKey string, l logger.Interface) *Resolver {
	return &Resolver{
		store:     store,
		publicKey: publicKey,
		logger:    l,
	}
}

// grantSet accumulates the users granted one resource. Wildcard is sticky:
// once a rule grants "*", later explicit lists do not downgrade it.
type grantSet struct {
	wildcard bool
	users    []string
}

func (g *grantSet) add(rule entity.AccessRule) {
	if g.wildcard {
		return
	}

	if rule.Users.Wildcard {
		g.wildcard = true
		g.users = nil

		return
	}

	g.users = append(g.users, rule.Users.Users...)
}

// Resolve queries the access-control rules once and folds them into the set
// of users that hold both required grants. Invoked before consumption starts;
// the result is immutable for the process lifetime.
func (r *Resolver) Resolve(ctx context.Context) (entity.UserSet, error) {
	r.logger.Trace("checking for metadata edit access")

	rules, err := r.store.ListAccessRules(ctx, r.publicKey, true)
	if err != nil {
		return entity.UserSet{}, fmt.Errorf("Resolver - Resolve - r.store.ListAccessRules: %w", err)
	}

	grants := map[string]*grantSet{
		ResourceImageGet:     {},
		ResourceMetadataPost: {},
	}

	for _, rule := range rules {
		for resource, grant := range grants {
			if !containsString(rule.Resources, resource) {
				continue
			}

			grant.add(rule)
		}
	}

	for _, resource := range []string{ResourceImageGet, ResourceMetadataPost} {
		grant := grants[resource]
		if !grant.wildcard && len(grant.users) == 0 {
			return entity.UserSet{}, fmt.Errorf("public key %q has no `%s` access for any user: %w",
				r.publicKey, resource, ErrNoAuthorizedUsers)
		}
	}

	read := grants[ResourceImageGet]
	write := grants[ResourceMetadataPost]

	if read.wildcard && write.wildcard {
		return entity.WildcardUserSet(), nil
	}

	users := intersect(read, write)
	if len(users) == 0 {
		return entity.UserSet{}, fmt.Errorf("public key %q holds `%s` and `%s` for disjoint user sets: %w",
			r.publicKey, ResourceImageGet, ResourceMetadataPost, ErrNoAuthorizedUsers)
	}

	if diff := difference(append(append([]string{}, read.users...), write.users...), users); len(diff) > 0 {
		r.logger.Warn(
			"public key only has access to one of `%s`/`%s` for users: [%s] - skipping those users",
			ResourceMetadataPost, ResourceImageGet, strings.Join(diff, ", "),
		)
	}

	for _, resource := range []string{ResourceImageGet, ResourceMetadataPost} {
		if !grants[resource].wildcard {
			r.logger.Warn(
				"public key only has `%s` access to certain users - rejecting messages for images outside: [%s]",
				resource, strings.Join(users, ", "),
			)
		}
	}

	return entity.NewUserSet(users), nil
}

// intersect computes the user intersection of two grant sets, where a
// wildcard side yields the other side's users.
func intersect(a, b *grantSet) []string {
	if a.wildcard {
		return dedupSorted(b.users)
	}

	if b.wildcard {
		return dedupSorted(a.users)
	}

	inB := make(map[string]struct{}, len(b.users))
	for _, user := range b.users {
		inB[user] = struct{}{}
	}

	var users []string
	for _, user := range a.users {
		if _, ok := inB[user]; ok {
			users = append(users, user)
		}
	}

	return dedupSorted(users)
}

// difference returns the members of all that are not in exclude, deduplicated.
func difference(all, exclude []string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, user := range exclude {
		excluded[user] = struct{}{}
	}

	var diff []string
	for _, user := range all {
		if _, ok := excluded[user]; !ok {
			diff = append(diff, user)
			excluded[user] = struct{}{}
		}
	}

	sort.Strings(diff)

	return diff
}

func dedupSorted(users []string) []string {
	seen := make(map[string]struct{}, len(users))

	var out []string
	for _, user := range users {
		if _, ok := seen[user]; ok {
			continue
		}

		seen[user] = struct{}{}
		out = append(out, user)
	}

	sort.Strings(out)

	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
