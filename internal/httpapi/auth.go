package httpapi

import "context"

// StubAuth trusts the bearer token verbatim as the user ID and
// derives a display name from it. Real deployments should replace
// this with a resolver backed by the project's actual identity
// provider; nothing else in this package depends on the concrete
// implementation beyond the AuthResolver interface.
type StubAuth struct{}

func (StubAuth) Resolve(_ context.Context, token string) (userID, username string, err error) {
	return token, token, nil
}
