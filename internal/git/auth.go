package git

import (
	"errors"

	"github.com/go-git/go-git/v5/plumbing/transport"
	gitHttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// BasicAuth creates a go-git BasicAuth credential from an access token.
// The token travels as the username, which is what GitHub expects for
// personal access tokens and app installation tokens alike.
// Returns nil if credential is empty.
func BasicAuth(credential string) *gitHttp.BasicAuth {
	if credential == "" {
		return nil
	}
	return &gitHttp.BasicAuth{
		Username: credential,
	}
}

// IsAuthError reports whether err was caused by missing or rejected credentials.
func IsAuthError(err error) bool {
	return errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrInvalidAuthMethod)
}

// AuthMethod is BasicAuth typed for go-git option structs, returning an
// untyped nil when there is no credential.
func AuthMethod(credential string) transport.AuthMethod {
	if credential == "" {
		return nil
	}
	return BasicAuth(credential)
}
