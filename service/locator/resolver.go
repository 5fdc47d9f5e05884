// Package locator resolves worker module locators per host convention.
// Path-oriented hosts require scheme-free paths while URL-oriented hosts
// require scheme-qualified locators; getting the two conventions mixed up
// is a primary defect source, so resolution is explicit and tested per
// convention class rather than per concrete host.
package locator

import (
	"fmt"
	"strings"

	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Convention identifies how a host expects module locators to be shaped.
type Convention string

const (
	// ConventionPath expects scheme-free paths.
	ConventionPath Convention = "path"
	// ConventionURL expects scheme-qualified locators.
	ConventionURL Convention = "url"
)

// Resolver normalises module locators for one convention.
type Resolver struct {
	convention   Convention
	volumeNaming bool
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithVolumeNaming toggles drive-letter correction on path-oriented hosts,
// where file URLs encode C:\dir as /C:/dir.
func WithVolumeNaming(enabled bool) Option {
	return func(r *Resolver) {
		r.volumeNaming = enabled
	}
}

// New creates a resolver for the supplied convention.
func New(convention Convention, opts ...Option) *Resolver {
	ret := &Resolver{convention: convention}
	if ret.convention == "" {
		ret.convention = ConventionPath
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Convention returns the convention this resolver serves.
func (r *Resolver) Convention() Convention {
	return r.convention
}

// Resolve accepts either a direct path or a URL and returns the locator in
// the shape the host convention requires.
func (r *Resolver) Resolve(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("module locator was empty")
	}
	switch r.convention {
	case ConventionURL:
		if strings.Contains(location, "://") {
			return url.Normalize(location, file.Scheme), nil
		}
		return file.Scheme + "://" + location, nil
	case ConventionPath:
		if scheme := url.Scheme(location, file.Scheme); scheme != file.Scheme {
			return "", fmt.Errorf("unsupported locator scheme %v for path convention", scheme)
		}
		aPath := location
		if strings.Contains(location, "://") {
			aPath = url.Path(location)
		}
		return r.correctVolume(aPath), nil
	}
	return "", fmt.Errorf("unsupported locator convention %v", r.convention)
}

// correctVolume strips the leading slash file URLs prepend to drive-letter
// paths.
func (r *Resolver) correctVolume(aPath string) string {
	if !r.volumeNaming || len(aPath) < 3 {
		return aPath
	}
	if aPath[0] == '/' && isDriveLetter(aPath[1]) && aPath[2] == ':' {
		return aPath[1:]
	}
	return aPath
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
