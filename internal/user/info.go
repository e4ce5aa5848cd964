// Package user implements the user lookup contract on top of a pluggable
// Directory: in-memory, Postgres, or either behind a Redis cache.
package user

import (
	"context"
	"strings"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/userapi"
)

// Contract errors re-exported for implementations in this package.
var (
	ErrNotFound   = userapi.ErrUserNotFound
	ErrInvalidUID = userapi.ErrInvalidUID
)

// Info is what the directory knows about a user.
type Info struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// String renders the response body: "Name <email>", whichever half is
// present, or the uid when the record is empty.
func (i Info) String() string {
	switch {
	case i.Name != "" && i.Email != "":
		return i.Name + " <" + i.Email + ">"
	case i.Name != "":
		return i.Name
	case i.Email != "":
		return "<" + i.Email + ">"
	default:
		return i.UID
	}
}

// ParseInfo splits a "Name <email>" description into an Info.
func ParseInfo(uid, raw string) Info {
	raw = strings.TrimSpace(raw)
	info := Info{UID: uid}

	open := strings.LastIndex(raw, "<")
	if open >= 0 && strings.HasSuffix(raw, ">") {
		info.Email = strings.TrimSpace(raw[open+1 : len(raw)-1])
		info.Name = strings.TrimSpace(raw[:open])
		return info
	}
	info.Name = raw
	return info
}

// ParseSeed converts configured seed entries into records. Later entries
// for the same uid win when loaded into a directory.
func ParseSeed(seed []config.SeedUser) []Info {
	out := make([]Info, 0, len(seed))
	for _, s := range seed {
		out = append(out, ParseInfo(s.UID, s.Info))
	}
	return out
}

// Directory resolves a uid to an Info. Lookup returns an error wrapping
// ErrNotFound when the uid is unknown.
type Directory interface {
	Lookup(ctx context.Context, uid string) (Info, error)
}
