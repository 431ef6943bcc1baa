package backend

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Factory creates an unconnected client.
type Factory func(*slog.Logger) Client

// ParamSpec documents one key a backend reads from backend.params.
type ParamSpec struct {
	Name        string
	Type        string
	Description string
}

// Info describes a registered backend.
type Info struct {
	Name        string
	Description string
	// Params lists the accepted backend.params keys. Empty means the
	// backend takes none.
	Params []ParamSpec
}

// ParamNames returns the accepted param keys in declaration order.
func (i Info) ParamNames() []string {
	names := make([]string, len(i.Params))
	for n, p := range i.Params {
		names[n] = p.Name
	}
	return names
}

type registration struct {
	info    Info
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// Register adds a backend to the registry under info.Name.
// Called by client implementations in their init() functions.
func Register(info Info, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[info.Name] = registration{info: info, factory: factory}
}

// Get retrieves a client factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[name]
	return r.factory, ok
}

// Describe returns the registered description of a backend.
func Describe(name string) (Info, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[name]
	return r.info, ok
}

// Backends returns the descriptions of every registered backend, sorted
// by name.
func Backends() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Info, 0, len(registry))
	for _, r := range registry {
		out = append(out, r.info)
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// NewClient creates a new client instance based on config type.
// The logger parameter is passed to the client constructor (nil uses discard logger).
func NewClient(cfg core.BackendConfig, logger *slog.Logger) (Client, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("backend type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownClientError{
			Type:      cfg.Type,
			Available: ListClients(),
		}
	}
	return factory(logger), nil
}

// CheckParams rejects backend.params keys the configured backend does
// not declare. Unknown backend types are left to NewClient.
func CheckParams(cfg core.BackendConfig) error {
	info, ok := Describe(cfg.Type)
	if !ok {
		return nil
	}
	accepted := info.ParamNames()
	var unknown []string
	for k := range cfg.Params {
		if !slices.Contains(accepted, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &UnknownParamError{Type: cfg.Type, Keys: unknown, Accepted: accepted}
}

// ListClients returns all registered client names (sorted).
func ListClients() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a client type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownClientError is returned when an unknown backend type is requested.
type UnknownClientError struct {
	Type      string
	Available []string
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("unknown backend type %q\nAvailable backends: %v\nHint: Check backend.type in sqlstream.yaml", e.Type, e.Available)
}

// UnknownParamError is returned by CheckParams.
type UnknownParamError struct {
	Type     string
	Keys     []string
	Accepted []string
}

func (e *UnknownParamError) Error() string {
	if len(e.Accepted) == 0 {
		return fmt.Sprintf("backend %s takes no params, got %s", e.Type, strings.Join(e.Keys, ", "))
	}
	return fmt.Sprintf("unknown params for backend %s: %s (accepted: %s)",
		e.Type, strings.Join(e.Keys, ", "), strings.Join(e.Accepted, ", "))
}
