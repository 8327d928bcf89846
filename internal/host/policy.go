package host

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/webbridge/internal/resource"
	"github.com/bmatcuk/doublestar/v4"
)

// NavigationMode selects which page navigations a browser performs itself.
type NavigationMode int

const (
	// NavigateAll allows every navigation.
	NavigateAll NavigationMode = iota
	// NavigatePreventAll keeps the browser on its current page.
	NavigatePreventAll
	// NavigateOnlyLocal allows file:// and local: urls only.
	NavigateOnlyLocal
)

// String returns the string representation of the mode
func (m NavigationMode) String() string {
	switch m {
	case NavigateAll:
		return "all"
	case NavigatePreventAll:
		return "prevent"
	case NavigateOnlyLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ParseNavigationMode parses the names produced by NavigationMode.String.
func ParseNavigationMode(s string) (NavigationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return NavigateAll, nil
	case "prevent", "none":
		return NavigatePreventAll, nil
	case "local":
		return NavigateOnlyLocal, nil
	}
	return 0, fmt.Errorf("unknown navigation mode %q", s)
}

// NavigationPolicy decides whether LoadURL navigates or hands the url to
// Handlers.OnOpenURL instead.
type NavigationPolicy struct {
	Mode NavigationMode
	// Allow lists doublestar patterns that are always navigable,
	// e.g. "https://docs.example.com/**".
	Allow []string
}

// Validate checks the allow patterns.
func (p NavigationPolicy) Validate() error {
	for _, pattern := range p.Allow {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid navigation pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
	}
	return nil
}

// Allows reports whether a browser showing current may navigate to next.
func (p NavigationPolicy) Allows(current, next string) bool {
	if next == "" || next == resource.BlankURL {
		return true
	}
	for _, pattern := range p.Allow {
		if ok, err := doublestar.Match(pattern, next); err == nil && ok {
			return true
		}
	}

	switch p.Mode {
	case NavigatePreventAll:
		return current == "" || current == resource.BlankURL || current == next
	case NavigateOnlyLocal:
		return strings.HasPrefix(next, resource.SchemeFile) || strings.HasPrefix(next, resource.SchemeLocal)
	}
	return true
}
