// Package registry maps channel identities to their schema definitions
// and provider factories, and builds ready-to-initialize connectors from
// them. A process typically registers its compiled-in channels during
// init and resolves instances through the default registry.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/heraldhq/herald/pkg/connector/core"
	"github.com/heraldhq/herald/pkg/connector/runtime"
	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/logger"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

// ProviderFactory builds a fresh provider instance for one connector.
// Factories must not share mutable state between the instances they
// return; each connector owns its provider.
type ProviderFactory func() core.Provider

// Definition pairs a channel schema with the factory that produces
// provider instances for it.
type Definition struct {
	Schema  *schema.Schema
	Factory ProviderFactory
}

// CatalogEntry describes one registered channel for listings and tooling.
type CatalogEntry struct {
	Provider     string   `json:"provider"`
	ChannelType  string   `json:"channelType"`
	Version      string   `json:"version"`
	DisplayName  string   `json:"displayName"`
	Capabilities []string `json:"capabilities"`
	AuthMethods  []string `json:"authMethods"`
}

// Registry stores channel definitions keyed by identity. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	logger *zap.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		defs:   make(map[string]Definition),
		logger: logger.Get().With(zap.String("component", "channel_registry")),
	}
}

// key normalizes an identity into the map key, matching the schema
// layer's case-insensitive name policy.
func key(provider, channelType, version string) string {
	return strings.ToLower(provider) + "/" + strings.ToLower(channelType) + "@" + strings.ToLower(version)
}

// Register adds a channel definition. Registering an identity twice is a
// conflict; versions of the same channel register independently.
func (r *Registry) Register(def Definition) error {
	if def.Schema == nil {
		return errors.New(errors.ErrorTypeValidation, "definition schema must not be nil")
	}
	if def.Factory == nil {
		return errors.New(errors.ErrorTypeValidation, "definition factory must not be nil")
	}

	id := def.Schema.Identity()
	k := key(id.Provider, id.ChannelType, id.Version)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[k]; exists {
		return errors.Newf(errors.ErrorTypeConflict, "channel %s is already registered", id)
	}
	r.defs[k] = def
	r.logger.Info("channel registered", zap.String("channel", id.String()))
	return nil
}

// MustRegister is Register for compiled-in channels. It panics on error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition registered under the exact identity.
func (r *Registry) Get(provider, channelType, version string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key(provider, channelType, version)]
	return def, ok
}

// Latest returns the definition with the highest semantic version for
// the provider/channel pair.
func (r *Registry) Latest(provider, channelType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    Definition
		bestVer *semver.Version
		found   bool
	)
	for _, def := range r.defs {
		id := def.Schema.Identity()
		if !strings.EqualFold(id.Provider, provider) || !strings.EqualFold(id.ChannelType, channelType) {
			continue
		}
		v, err := semver.NewVersion(id.Version)
		if err != nil {
			continue
		}
		if !found || v.GreaterThan(bestVer) {
			best, bestVer, found = def, v, true
		}
	}
	return best, found
}

// Resolve finds a definition by identity. An empty or "latest" version
// selects the highest registered version.
func (r *Registry) Resolve(provider, channelType, version string) (Definition, error) {
	var (
		def Definition
		ok  bool
	)
	if version == "" || strings.EqualFold(version, "latest") {
		def, ok = r.Latest(provider, channelType)
		if !ok {
			return Definition{}, errors.Newf(errors.ErrorTypeNotFound,
				"no channel registered for %s/%s", provider, channelType)
		}
		return def, nil
	}
	def, ok = r.Get(provider, channelType, version)
	if !ok {
		return Definition{}, errors.Newf(errors.ErrorTypeNotFound,
			"channel %s/%s@%s is not registered", provider, channelType, version)
	}
	return def, nil
}

// List returns the registered identities sorted by provider, channel
// type and descending version.
func (r *Registry) List() []schema.Identity {
	r.mu.RLock()
	ids := make([]schema.Identity, 0, len(r.defs))
	for _, def := range r.defs {
		ids = append(ids, def.Schema.Identity())
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		if !strings.EqualFold(ids[i].Provider, ids[j].Provider) {
			return strings.ToLower(ids[i].Provider) < strings.ToLower(ids[j].Provider)
		}
		if !strings.EqualFold(ids[i].ChannelType, ids[j].ChannelType) {
			return strings.ToLower(ids[i].ChannelType) < strings.ToLower(ids[j].ChannelType)
		}
		return versionLess(ids[j].Version, ids[i].Version)
	})
	return ids
}

// versionLess orders semantic versions, falling back to string order for
// values that do not parse.
func versionLess(a, b string) bool {
	av, aerr := semver.NewVersion(a)
	bv, berr := semver.NewVersion(b)
	if aerr != nil || berr != nil {
		return a < b
	}
	return av.LessThan(bv)
}

// Catalog returns one entry per registered channel in List order.
func (r *Registry) Catalog() []CatalogEntry {
	ids := r.List()
	entries := make([]CatalogEntry, 0, len(ids))
	for _, id := range ids {
		def, ok := r.Get(id.Provider, id.ChannelType, id.Version)
		if !ok {
			continue
		}
		s := def.Schema
		methods := make([]string, 0, len(s.AuthenticationConfigurations()))
		for _, cfg := range s.AuthenticationConfigurations() {
			methods = append(methods, string(cfg.Method))
		}
		entries = append(entries, CatalogEntry{
			Provider:     id.Provider,
			ChannelType:  id.ChannelType,
			Version:      id.Version,
			DisplayName:  s.DisplayName(),
			Capabilities: s.Capabilities().Names(),
			AuthMethods:  methods,
		})
	}
	return entries
}

// Len reports the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// NewConnector resolves the identity, binds the values to the channel's
// settings store, and wraps a fresh provider instance in the lifecycle
// runtime. The connector is returned uninitialized.
func (r *Registry) NewConnector(provider, channelType, version string, values map[string]interface{}, opts ...runtime.Option) (*runtime.Connector, error) {
	def, err := r.Resolve(provider, channelType, version)
	if err != nil {
		return nil, err
	}

	st, err := settings.NewFromMap(def.Schema, values)
	if err != nil {
		return nil, err
	}

	p := def.Factory()
	if p == nil {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"factory for channel %s returned no provider", def.Schema.Identity())
	}
	return runtime.New(def.Schema, p, st, opts...)
}

// defaultRegistry serves compiled-in channel registrations.
var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a definition to the default registry.
func Register(def Definition) error {
	return defaultRegistry.Register(def)
}

// MustRegister adds a definition to the default registry, panicking on
// error. Channel packages call this from init.
func MustRegister(def Definition) {
	defaultRegistry.MustRegister(def)
}

// Get returns a definition from the default registry.
func Get(provider, channelType, version string) (Definition, bool) {
	return defaultRegistry.Get(provider, channelType, version)
}

// Latest returns the highest-versioned definition from the default
// registry.
func Latest(provider, channelType string) (Definition, bool) {
	return defaultRegistry.Latest(provider, channelType)
}

// Resolve finds a definition in the default registry.
func Resolve(provider, channelType, version string) (Definition, error) {
	return defaultRegistry.Resolve(provider, channelType, version)
}

// List returns the identities registered in the default registry.
func List() []schema.Identity {
	return defaultRegistry.List()
}

// Catalog describes the channels registered in the default registry.
func Catalog() []CatalogEntry {
	return defaultRegistry.Catalog()
}

// NewConnector builds a connector from the default registry.
func NewConnector(provider, channelType, version string, values map[string]interface{}, opts ...runtime.Option) (*runtime.Connector, error) {
	return defaultRegistry.NewConnector(provider, channelType, version, values, opts...)
}
