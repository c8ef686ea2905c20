package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime feature toggles. Flags let operators
// turn optional subsystems off without redeploying, most importantly
// the Redis-backed caches, which the bot must survive losing.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature is one named toggle.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// The flags this build knows about.
const (
	// FeatureStatsCache caches usage summaries in Redis. Disabling it
	// makes every /stats call and digest recompute from PostgreSQL.
	FeatureStatsCache = "cache.stats"

	// FeatureKnownUserCache short-circuits registration lookups in
	// Redis. Disabling it sends every update to PostgreSQL.
	FeatureKnownUserCache = "cache.known_users"
)

// LoadFeatureFlags builds the flag set and applies environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features: make(map[string]*Feature),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults seeds every known flag in its default state.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureStatsCache] = &Feature{
		Name:        FeatureStatsCache,
		Description: "Cache usage summaries in Redis",
		Enabled:     true,
	}

	ff.features[FeatureKnownUserCache] = &Feature{
		Name:        FeatureKnownUserCache,
		Description: "Cache known-user checks in Redis",
		Enabled:     true,
	}
}

// loadFromEnvironment overrides defaults with FEATURE_* variables.
// Example: FEATURE_CACHE_STATS=false disables the stats cache.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if enabled, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = enabled
		}
	}
}

// featureNameToEnvKey derives the override variable for a flag name.
// "cache.known_users" -> "FEATURE_CACHE_KNOWN_USERS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether the named feature is on.
// Unknown features are off.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[name]
	return ok && feature.Enabled
}

// Set flips a feature at runtime. Mostly useful in tests.
func (ff *FeatureFlags) Set(name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if feature, ok := ff.features[name]; ok {
		feature.Enabled = enabled
	}
}

// All returns every feature sorted by name, for startup logging.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
