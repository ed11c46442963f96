package telephony

import "context"

// ConfigDefaults are process-wide fallbacks for per-tenant provider config
// keys (shared webhook secret, PBX callback token, stream address). A
// tenant's own row always wins; a fallback fills a key only when the row
// omits it, and empty fallback values are ignored.
type ConfigDefaults map[ProviderType]map[string]string

// Apply returns cfg with missing keys filled from the defaults for its type.
func (d ConfigDefaults) Apply(cfg ProviderConfig) ProviderConfig {
	fill := d[cfg.Type]
	if len(fill) == 0 {
		return cfg
	}
	out := cfg
	out.Config = make(map[string]string, len(cfg.Config)+len(fill))
	for k, v := range fill {
		if v != "" {
			out.Config[k] = v
		}
	}
	for k, v := range cfg.Config {
		out.Config[k] = v
	}
	return out
}

// WithDefaults decorates a Resolver so every resolved provider carries the
// fallbacks. Nil or empty defaults return the inner resolver unchanged.
func WithDefaults(inner Resolver, d ConfigDefaults) Resolver {
	if len(d) == 0 {
		return inner
	}
	return &defaultedResolver{inner: inner, defaults: d}
}

type defaultedResolver struct {
	inner    Resolver
	defaults ConfigDefaults
}

func (r *defaultedResolver) Provider(ctx context.Context, tenantID string, pt ProviderType) (ProviderConfig, error) {
	cfg, err := r.inner.Provider(ctx, tenantID, pt)
	if err != nil {
		return ProviderConfig{}, err
	}
	return r.defaults.Apply(cfg), nil
}

func (r *defaultedResolver) DefaultProvider(ctx context.Context, tenantID string) (ProviderConfig, error) {
	cfg, err := r.inner.DefaultProvider(ctx, tenantID)
	if err != nil {
		return ProviderConfig{}, err
	}
	return r.defaults.Apply(cfg), nil
}

func (r *defaultedResolver) NumberByDialed(ctx context.Context, dialed string) (PhoneNumber, ProviderConfig, error) {
	n, cfg, err := r.inner.NumberByDialed(ctx, dialed)
	if err != nil {
		return PhoneNumber{}, ProviderConfig{}, err
	}
	return n, r.defaults.Apply(cfg), nil
}
