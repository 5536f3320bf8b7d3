package serial

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// DefaultAuthorizeTimeout bounds a single authorization request.
const DefaultAuthorizeTimeout = 5 * time.Second

// Authorizer decides whether a device path may be opened. Authorize may
// block, for instance on a user prompt, but must honour ctx.
type Authorizer interface {
	Authorize(ctx context.Context, path string) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, path string) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, path string) (bool, error) {
	return f(ctx, path)
}

// AllowPatterns permits paths matching any of the shell globs in patterns.
// With no patterns every path is allowed.
func AllowPatterns(patterns ...string) (Authorizer, error) {
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("%w: bad allow pattern %q: %v", ErrInvalidConfig, p, err)
		}
	}
	return AuthorizerFunc(func(_ context.Context, path string) (bool, error) {
		if len(patterns) == 0 {
			return true, nil
		}
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, path); ok {
				return true, nil
			}
		}
		return false, nil
	}), nil
}

type authResult struct {
	ok  bool
	err error
}

// authorize consults a with a deadline. A refusal, an error or running out of
// time all deny access.
func authorize(ctx context.Context, a Authorizer, path string, timeout time.Duration) error {
	if a == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan authResult, 1)
	go func() {
		ok, err := a.Authorize(ctx, path)
		resultCh <- authResult{ok: ok, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return &PortError{Op: "authorize", Path: path, Kind: ErrPermissionDenied, Err: res.err}
		}
		if !res.ok {
			return &PortError{Op: "authorize", Path: path, Kind: ErrPermissionDenied}
		}
		return nil
	case <-ctx.Done():
		return &PortError{Op: "authorize", Path: path, Kind: ErrPermissionDenied,
			Err: fmt.Errorf("no answer within %s", timeout)}
	}
}
