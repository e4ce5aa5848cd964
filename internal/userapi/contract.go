// Package userapi is the user lookup contract shared by user-server, which
// implements it, and its callers, which reach it through Client.
package userapi

import (
	"context"
	"errors"
	"net/url"
)

// ServerName is the logical name user-server registers under.
const ServerName = "user-server"

// BasePath prefixes every route of the contract.
const BasePath = "/user"

// UIDParam is the path parameter bound to the user identifier.
const UIDParam = "uid"

// Contract errors. Implementations wrap them; callers test with errors.Is.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidUID   = errors.New("invalid uid")
	ErrUnavailable  = errors.New("user-server unavailable")
)

// UserServer fetches user info by identifier. The uid is passed through
// unchanged; the result is an unstructured description of the user.
type UserServer interface {
	GetUserInfo(ctx context.Context, uid string) (string, error)
}

// PathFor returns the request path for uid, escaping it as one segment.
func PathFor(uid string) string {
	return BasePath + "/" + url.PathEscape(uid)
}
