package entity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AccessRule is one authorization grant as returned by the image store's
// access-control listing. Never mutated after decoding.
type AccessRule struct {
	ID        string   `json:"id,omitempty"`
	Resources []string `json:"resources"`
	Users     UserList `json:"users"`
}

// UserList is the `users` field of an access rule: either the literal
// wildcard "*" or an explicit list of user identifiers.
type UserList struct {
	Wildcard bool
	Users    []string
}

func (u *UserList) UnmarshalJSON(data []byte) error {
	var wildcard string
	if err := json.Unmarshal(data, &wildcard); err == nil {
		if wildcard != "*" {
			return fmt.Errorf("UserList - UnmarshalJSON - unexpected string %q", wildcard)
		}

		u.Wildcard = true
		u.Users = nil

		return nil
	}

	var users []string
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("UserList - UnmarshalJSON - json.Unmarshal: %w", err)
	}

	u.Wildcard = false
	u.Users = users

	return nil
}

func (u UserList) MarshalJSON() ([]byte, error) {
	if u.Wildcard {
		return json.Marshal("*")
	}

	return json.Marshal(u.Users)
}

// UserSet is the resolved set of users the pipeline may operate on.
// Immutable after resolution; shared across concurrent handlers without locking.
type UserSet struct {
	wildcard bool
	users    map[string]struct{}
}

// NewUserSet builds a set from an explicit user list.
func NewUserSet(users []string) UserSet {
	set := make(map[string]struct{}, len(users))
	for _, user := range users {
		set[user] = struct{}{}
	}

	return UserSet{users: set}
}

// WildcardUserSet builds the set that authorizes every user.
func WildcardUserSet() UserSet {
	return UserSet{wildcard: true}
}

// Wildcard reports whether every user is authorized.
func (s UserSet) Wildcard() bool {
	return s.wildcard
}

// Contains reports whether the given user is authorized.
func (s UserSet) Contains(user string) bool {
	if s.wildcard {
		return true
	}

	_, ok := s.users[user]

	return ok
}

// Users returns the explicit members in sorted order. Empty for a wildcard set.
func (s UserSet) Users() []string {
	users := make([]string, 0, len(s.users))
	for user := range s.users {
		users = append(users, user)
	}

	sort.Strings(users)

	return users
}
