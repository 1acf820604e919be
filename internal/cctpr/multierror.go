package cctpr

import (
	"errors"
	"sort"
	"strings"

	"github.com/yourorg/cctpr-engine/internal/types"
)

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// MultiError collects independent per-domain failures of a batch operation.
type MultiError map[types.Domain]error

func (m MultiError) Error() string {
	domains := make([]string, 0, len(m))
	for d := range m {
		domains = append(domains, string(d))
	}
	sort.Strings(domains)
	parts := make([]string, len(domains))
	for i, d := range domains {
		parts[i] = d + ": " + m[types.Domain(d)].Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (m MultiError) Unwrap() []error {
	out := make([]error, 0, len(m))
	for _, err := range m {
		out = append(out, err)
	}
	return out
}

// OrNil returns nil when nothing failed.
func (m MultiError) OrNil() error {
	if len(m) == 0 {
		return nil
	}
	return m
}
