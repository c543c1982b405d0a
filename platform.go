package universal_saver

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/alanbriolat/universal-saver/generic"
)

var (
	ErrDuplicatePlatform = errors.New("duplicate platform name")
	ErrInvalidPlatform   = errors.New("invalid platform")
	ErrNoMatch           = errors.New("no platform matched the host")
	ErrUnknownPlatform   = errors.New("unknown platform")
)

var (
	PriorityHighest int16 = math.MinInt16
	PriorityDefault int16 = 0
	PriorityLowest  int16 = math.MaxInt16
)

// A Platform is a social media site the download service knows how to fetch from, identified by its domains.
type Platform struct {
	Name    string
	Domains []string
	// Priority of the platform, lower (including negative) means matching earlier.
	Priority int16
}

func (p Platform) WithPriority(priority int16) Platform {
	p.Priority = priority
	return p
}

// Match succeeds if host is one of the platform's domains or a subdomain of one, ignoring case and any trailing dot.
func (p Platform) Match(host string) error {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return fmt.Errorf("empty host")
	}
	for _, domain := range p.Domains {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
	}
	return fmt.Errorf("%s is not one of %s", host, strings.Join(p.Domains, ", "))
}

// A PlatformRegistry is the allow-list of platforms that links are accepted for.
type PlatformRegistry struct {
	platforms   []*Platform
	platformMap map[string]*Platform
}

// Add registers a Platform with the PlatformRegistry. Platform.Name and Platform.Domains must be set, and
// Platform.Name must be unique within the PlatformRegistry.
func (r *PlatformRegistry) Add(p Platform) error {
	if r.platformMap == nil {
		r.platformMap = make(map[string]*Platform)
	}
	if p.Name == "" || len(p.Domains) == 0 {
		return ErrInvalidPlatform
	}
	if _, ok := r.platformMap[p.Name]; ok {
		return ErrDuplicatePlatform
	}
	p.Domains = append([]string(nil), p.Domains...)
	r.platformMap[p.Name] = &p
	r.platforms = append(r.platforms, r.platformMap[p.Name])
	r.sortByPriority()
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *PlatformRegistry) MustAdd(p Platform) {
	generic.Unwrap_(r.Add(p))
}

// Get returns a copy of the named Platform.
func (r *PlatformRegistry) Get(name string) (Platform, error) {
	if p, ok := r.platformMap[name]; ok {
		return *p, nil
	}
	return Platform{}, ErrUnknownPlatform
}

// List returns the names of registered platforms in priority order.
func (r *PlatformRegistry) List() []string {
	names := make([]string, 0, len(r.platforms))
	for _, p := range r.platforms {
		names = append(names, p.Name)
	}
	return names
}

// Describe returns the platform names as an English list, e.g. "A, B and C".
func (r *PlatformRegistry) Describe() string {
	names := r.List()
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// Match a host against each Platform in priority order. If none match, the error lists why each one didn't.
func (r *PlatformRegistry) Match(host string) (*Platform, error) {
	var result error
	for _, p := range r.platforms {
		if err := p.Match(host); err == nil {
			match := *p
			return &match, nil
		} else {
			result = multierror.Append(result, multierror.Prefix(err, fmt.Sprintf("[%v]", p.Name)))
		}
	}
	if result == nil {
		return nil, ErrNoMatch
	}
	return nil, result
}

func (r *PlatformRegistry) sortByPriority() {
	sort.SliceStable(r.platforms, func(i, j int) bool {
		return r.platforms[i].Priority < r.platforms[j].Priority
	})
}

// DefaultPlatformRegistry is populated by importing the platforms package.
var DefaultPlatformRegistry PlatformRegistry
