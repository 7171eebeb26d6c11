package source

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/reconcile"
)

// Endpoints carries the base URLs and credentials for the live sources.
type Endpoints struct {
	ExchangeBaseURL string
	VendorBaseURL   string
	VendorAPIKey    string
}

// Registry maps source names to their implementations and remembers
// registration order, which is the consultation priority.
type Registry struct {
	sources map[string]reconcile.Source
	order   []string
}

// NewRegistry creates a registry populated with every known source, in
// default priority order: the exchange API outranks the vendor.
func NewRegistry(fetcher *fetch.HTTPFetcher, eps Endpoints) *Registry {
	r := &Registry{sources: make(map[string]reconcile.Source)}
	r.Register(NewExchangeSource(fetcher, eps.ExchangeBaseURL))
	r.Register(NewVendorSource(fetcher, eps.VendorBaseURL, eps.VendorAPIKey))
	return r
}

// Register adds a source to the registry.
func (r *Registry) Register(s reconcile.Source) {
	name := s.Name()
	r.sources[name] = s
	r.order = append(r.order, name)
}

// Get returns a source by name.
func (r *Registry) Get(name string) (reconcile.Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", name)
	}
	return s, nil
}

// Ordered returns the sources named in priority, falling back to
// registration order when priority is empty. Unknown names error rather
// than being silently dropped.
func (r *Registry) Ordered(priority []string) ([]reconcile.Source, error) {
	names := priority
	if len(names) == 0 {
		names = r.order
	}
	out := make([]reconcile.Source, 0, len(names))
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
