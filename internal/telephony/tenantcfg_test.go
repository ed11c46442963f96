package telephony

import (
	"context"
	"testing"
)

func TestMemoryResolverProviderLookup(t *testing.T) {
	r := NewMemoryResolver()
	r.AddProvider(ProviderConfig{ID: "p1", TenantID: "tenant-1", Type: ProviderSIPPBX, IsActive: true})
	r.AddProvider(ProviderConfig{ID: "p2", TenantID: "tenant-1", Type: ProviderHostedGateway, IsActive: true, IsDefault: true})
	r.AddProvider(ProviderConfig{ID: "p3", TenantID: "tenant-2", Type: ProviderSIPPBX, IsActive: false})

	ctx := context.Background()
	p, err := r.Provider(ctx, "tenant-1", ProviderSIPPBX)
	if err != nil || p.ID != "p1" {
		t.Fatalf("Provider = %+v, %v", p, err)
	}
	if _, err := r.Provider(ctx, "tenant-2", ProviderSIPPBX); err != ErrProviderNotFound {
		t.Fatalf("inactive provider returned: %v", err)
	}
	def, err := r.DefaultProvider(ctx, "tenant-1")
	if err != nil || def.ID != "p2" {
		t.Fatalf("DefaultProvider = %+v, %v", def, err)
	}
	if _, err := r.DefaultProvider(ctx, "tenant-2"); err != ErrProviderNotFound {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestMemoryResolverNumberByDialed(t *testing.T) {
	r := NewMemoryResolver()
	r.AddProvider(ProviderConfig{ID: "p1", TenantID: "tenant-1", Type: ProviderHostedGateway, IsActive: true})
	r.AddNumber(PhoneNumber{ID: "n1", TenantID: "tenant-1", ProviderID: "p1", Number: "+15550200", IsActive: true,
		Capabilities: []Capability{CapabilityInbound}})
	r.AddNumber(PhoneNumber{ID: "n2", TenantID: "tenant-1", ProviderID: "p-gone", Number: "+15550300", IsActive: true})

	ctx := context.Background()
	n, p, err := r.NumberByDialed(ctx, "+15550200")
	if err != nil || n.ID != "n1" || p.ID != "p1" {
		t.Fatalf("NumberByDialed = %+v, %+v, %v", n, p, err)
	}
	if _, _, err := r.NumberByDialed(ctx, "+15559999"); err != ErrNumberNotFound {
		t.Fatalf("unknown number: %v", err)
	}
	if _, _, err := r.NumberByDialed(ctx, "+15550300"); err != ErrProviderNotFound {
		t.Fatalf("orphaned number: %v", err)
	}
}

func TestPhoneNumberCapabilities(t *testing.T) {
	n := PhoneNumber{Capabilities: []Capability{CapabilityInbound}}
	if !n.Can(CapabilityInbound) {
		t.Fatalf("inbound capability missing")
	}
	if n.Can(CapabilityOutbound) {
		t.Fatalf("outbound capability should be absent")
	}
}
