package version

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/obsforge/stackupgrade/pkg/config"
)

// Strategy names accepted in component configuration.
const (
	StrategyPinned = "pinned"
	StrategyLatest = "latest"
	StrategyRange  = "range"
	StrategyLTS    = "lts"
)

const envOverridePrefix = "STACKUPGRADE_VERSION_"

// Resolver produces the target version for a component according to its
// configured strategy, consulting the cache, the release API and the
// manifest fallback chain.
type Resolver struct {
	cfg       *config.UpgradeConfig
	client    ReleaseClient
	cache     *Cache
	manifests map[string]string // component -> manifest version
	overrides map[string]string // per-run overrides, highest non-env precedence
}

// NewResolver creates a resolver. manifests maps component names to their
// manifest-declared versions and may be nil.
func NewResolver(cfg *config.UpgradeConfig, client ReleaseClient, cache *Cache, manifests map[string]string) *Resolver {
	return &Resolver{
		cfg:       cfg,
		client:    client,
		cache:     cache,
		manifests: manifests,
		overrides: make(map[string]string),
	}
}

// SetOverride pins the resolved version for a component for this run.
func (r *Resolver) SetOverride(component, ver string) {
	r.overrides[component] = ver
}

// Resolve returns the target version for component. Every result is
// validated as a semantic version; an invalid result is a resolution
// failure, never a silent pass-through.
func (r *Resolver) Resolve(ctx context.Context, component string) (string, error) {
	comp := r.cfg.Component(component)
	if comp == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownComponent, component)
	}

	resolved, err := r.resolve(ctx, comp)
	if err != nil {
		return "", err
	}

	resolved = Normalize(resolved)

	if err := Validate(resolved); err != nil {
		return "", fmt.Errorf("%w: component %s resolved to %q: %w",
			ErrNotResolvable, component, resolved, err)
	}

	return resolved, nil
}

func (r *Resolver) resolve(ctx context.Context, comp *config.ComponentConfig) (string, error) {
	// Environment override beats everything, including per-run overrides.
	if env := os.Getenv(envOverridePrefix + envKey(comp.Name)); env != "" {
		log.Printf("Version for %s overridden from environment: %s", comp.Name, env)
		return env, nil
	}

	if override, ok := r.overrides[comp.Name]; ok {
		log.Printf("Version for %s overridden for this run: %s", comp.Name, override)
		return override, nil
	}

	strategy := strings.ToLower(comp.Strategy)
	if strategy == "" {
		strategy = StrategyPinned
	}

	switch strategy {
	case StrategyPinned:
		return r.resolvePinned(comp)
	case StrategyLatest:
		return r.resolveLatest(ctx, comp)
	case StrategyRange:
		return r.resolveRange(ctx, comp)
	case StrategyLTS:
		// LTS detection is not implemented; treated as latest.
		return r.resolveLatest(ctx, comp)
	default:
		return "", fmt.Errorf("%w: strategy %q for %s", ErrNotResolvable, comp.Strategy, comp.Name)
	}
}

func (r *Resolver) resolvePinned(comp *config.ComponentConfig) (string, error) {
	if comp.Version != "" {
		return comp.Version, nil
	}

	// target_version is the declarative spelling of the same pin;
	// version wins when both are set.
	if comp.TargetVersion != "" {
		return comp.TargetVersion, nil
	}

	if mv, ok := r.manifests[comp.Name]; ok && mv != "" {
		return mv, nil
	}

	return "", fmt.Errorf("%w: %s has no pinned or manifest version", ErrNotResolvable, comp.Name)
}

func (r *Resolver) resolveLatest(ctx context.Context, comp *config.ComponentConfig) (string, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(comp.Name); ok {
			return cached, nil
		}
	}

	if r.client != nil {
		latest, err := r.client.LatestRelease(ctx, comp.Name)
		if err == nil {
			if r.cache != nil {
				r.cache.Put(comp.Name, latest)
			}

			return latest, nil
		}

		log.Printf("Latest release lookup for %s failed, falling back: %v", comp.Name, err)
	}

	if comp.FallbackVersion != "" {
		return comp.FallbackVersion, nil
	}

	if mv, ok := r.manifests[comp.Name]; ok && mv != "" {
		return mv, nil
	}

	return "", fmt.Errorf("%w: no latest release or fallback for %s", ErrNotResolvable, comp.Name)
}

func (r *Resolver) resolveRange(ctx context.Context, comp *config.ComponentConfig) (string, error) {
	if comp.VersionRange == "" {
		return r.resolvePinned(comp)
	}

	rng, err := ParseRange(comp.VersionRange)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotResolvable, comp.Name, err)
	}

	latest, err := r.resolveLatest(ctx, comp)
	if err == nil && rng.Matches(Normalize(latest)) {
		return latest, nil
	}

	if err != nil {
		log.Printf("Range resolution for %s could not fetch latest: %v", comp.Name, err)
	} else {
		log.Printf("Latest %s for %s outside range %s, falling back to pinned", latest, comp.Name, rng)
	}

	return r.resolvePinned(comp)
}

func envKey(component string) string {
	key := strings.ToUpper(component)
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, ".", "_")

	return key
}
