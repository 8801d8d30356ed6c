package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"

	"github.com/emoradar/emoradar/internal/domain"
)

// Loader reads a policy file from disk.
type Loader struct {
	filePath string
	validate *validator.Validate
}

// NewLoader creates a loader for filePath. An empty path loads the built-in table.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Path returns the configured file path.
func (l *Loader) Path() string { return l.filePath }

// Load reads, normalizes and validates the policy.
func (l *Loader) Load() (*Policy, error) {
	if l.filePath == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return l.Parse(data)
}

// Parse decodes a YAML policy document.
func (l *Loader) Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy yaml: %w", err)
	}
	normalize(&p)
	if err := l.Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks struct constraints and that every blocked domain sits under a
// known public suffix. A bare suffix such as "com" is rejected.
func (l *Loader) Validate(p *Policy) error {
	if err := l.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	var errs []error
	for m, mp := range p.Moods {
		seen := make(map[string]bool, len(mp.Block))
		for _, d := range mp.Block {
			if seen[d] {
				errs = append(errs, fmt.Errorf("mood %s: duplicate domain %q", m, d))
				continue
			}
			seen[d] = true
			if err := checkSuffix(d); err != nil {
				errs = append(errs, fmt.Errorf("mood %s: %w", m, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid policy: %w", errors.Join(errs...))
	}
	return nil
}

func checkSuffix(d string) error {
	if _, err := publicsuffix.EffectiveTLDPlusOne(d); err != nil {
		return fmt.Errorf("domain %q: %w", d, err)
	}
	ps, icann := publicsuffix.PublicSuffix(d)
	if !icann && !strings.Contains(ps, ".") {
		return fmt.Errorf("domain %q: unknown top-level domain %q", d, ps)
	}
	return nil
}

func normalize(p *Policy) {
	for m, mp := range p.Moods {
		for i, d := range mp.Block {
			mp.Block[i] = domain.CanonicalHost(d)
		}
		p.Moods[m] = mp
	}
	for i, d := range p.Allowed {
		p.Allowed[i] = domain.CanonicalHost(d)
	}
}

// Provider serves the current policy and lets a reloader swap it.
type Provider struct {
	current atomic.Pointer[Policy]
}

// NewProvider starts with p, or the built-in table when p is nil.
func NewProvider(p *Policy) *Provider {
	if p == nil {
		p = Default()
	}
	pr := &Provider{}
	pr.current.Store(p)
	return pr
}

// Current returns the active policy. Callers must not mutate it.
func (pr *Provider) Current() *Policy { return pr.current.Load() }

// Swap installs p and returns the previous policy.
func (pr *Provider) Swap(p *Policy) *Policy { return pr.current.Swap(p) }

// Resolve implements Resolver against the active policy.
func (pr *Provider) Resolve(m domain.Mood) []string { return pr.Current().Resolve(m) }

// Version returns the active policy version.
func (pr *Provider) Version() int { return pr.Current().Version }
