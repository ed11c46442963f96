package telephony

import (
	"context"
	"testing"
)

func TestConfigDefaultsFillMissingKeys(t *testing.T) {
	d := ConfigDefaults{
		ProviderSIPPBX: {
			"callback_token": "shared-tok",
			"stream_addr":    "pbx.internal:5038",
			"unset":          "",
		},
	}

	cfg := d.Apply(ProviderConfig{
		Type:   ProviderSIPPBX,
		Config: map[string]string{"callback_token": "tenant-tok"},
	})
	if cfg.Config["callback_token"] != "tenant-tok" {
		t.Fatalf("tenant value overridden: %q", cfg.Config["callback_token"])
	}
	if cfg.Config["stream_addr"] != "pbx.internal:5038" {
		t.Fatalf("missing key not filled: %q", cfg.Config["stream_addr"])
	}
	if _, ok := cfg.Config["unset"]; ok {
		t.Fatalf("empty fallback applied")
	}

	untouched := d.Apply(ProviderConfig{Type: ProviderHostedGateway, Config: map[string]string{"api_key": "k"}})
	if untouched.Config["api_key"] != "k" || len(untouched.Config) != 1 {
		t.Fatalf("foreign provider type touched: %+v", untouched.Config)
	}
}

func TestWithDefaultsDecoratesResolver(t *testing.T) {
	inner := NewMemoryResolver()
	inner.AddProvider(ProviderConfig{
		ID:       "p1",
		TenantID: "tenant-1",
		Type:     ProviderHostedGateway,
		Config:   map[string]string{},
		IsActive: true,
	})
	inner.AddNumber(PhoneNumber{
		ID: "n1", TenantID: "tenant-1", ProviderID: "p1", Number: "+15550200", IsActive: true,
	})

	r := WithDefaults(inner, ConfigDefaults{
		ProviderHostedGateway: {"webhook_secret": "shared-secret"},
	})

	ctx := context.Background()
	cfg, err := r.Provider(ctx, "tenant-1", ProviderHostedGateway)
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if cfg.Config["webhook_secret"] != "shared-secret" {
		t.Fatalf("fallback missing on Provider: %+v", cfg.Config)
	}

	_, cfg, err = r.NumberByDialed(ctx, "+15550200")
	if err != nil {
		t.Fatalf("NumberByDialed: %v", err)
	}
	if cfg.Config["webhook_secret"] != "shared-secret" {
		t.Fatalf("fallback missing on NumberByDialed: %+v", cfg.Config)
	}

	if got := WithDefaults(inner, nil); got != Resolver(inner) {
		t.Fatalf("empty defaults should return the inner resolver")
	}
}
