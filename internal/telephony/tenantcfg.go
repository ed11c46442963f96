package telephony

import (
	"context"
	"errors"
	"sync"
)

// Tenant-scoped provider configuration. The core treats these records as
// read-only inputs produced by the (external) admin surface.

type WebhookMode string

const (
	WebhookModeHTTP        WebhookMode = "http"
	WebhookModeEventStream WebhookMode = "event_stream"
	WebhookModeBoth        WebhookMode = "both"
)

// ProviderConfig is one tenant's connection to one telephony backend.
// Config holds opaque provider credentials/endpoints (webhook secrets,
// callback tokens, stream addresses) keyed by adapter-defined names.
type ProviderConfig struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Type        ProviderType      `json:"provider_type"`
	DisplayName string            `json:"display_name"`
	Config      map[string]string `json:"-"`
	IsActive    bool              `json:"is_active"`
	IsDefault   bool              `json:"is_default"`
	WebhookMode WebhookMode       `json:"webhook_mode"`
}

type Capability string

const (
	CapabilityInbound  Capability = "inbound"
	CapabilityOutbound Capability = "outbound"
)

// PhoneNumber is a routable business line.
type PhoneNumber struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	ProviderID   string       `json:"provider_id"`
	Number       string       `json:"phone_number"`
	Capabilities []Capability `json:"capabilities"`
	IsDefault    bool         `json:"is_default"`
	IsActive     bool         `json:"is_active"`
}

func (n PhoneNumber) Can(c Capability) bool {
	for _, have := range n.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

var (
	ErrProviderNotFound = errors.New("telephony: provider config not found")
	ErrNumberNotFound   = errors.New("telephony: phone number not found")
)

// Resolver looks up tenant provider configuration. Implementations must only
// return active records.
type Resolver interface {
	Provider(ctx context.Context, tenantID string, pt ProviderType) (ProviderConfig, error)
	DefaultProvider(ctx context.Context, tenantID string) (ProviderConfig, error)

	// NumberByDialed resolves which tenant line owns a dialed number. This is
	// how an inbound webhook is attributed to a tenant.
	NumberByDialed(ctx context.Context, dialed string) (PhoneNumber, ProviderConfig, error)
}

// MemoryResolver is an in-memory Resolver for tests and single-node setups.
type MemoryResolver struct {
	mu        sync.RWMutex
	providers []ProviderConfig
	numbers   []PhoneNumber
}

func NewMemoryResolver() *MemoryResolver { return &MemoryResolver{} }

func (r *MemoryResolver) AddProvider(cfg ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, cfg)
}

func (r *MemoryResolver) AddNumber(n PhoneNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers = append(r.numbers, n)
}

func (r *MemoryResolver) Provider(_ context.Context, tenantID string, pt ProviderType) (ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.TenantID == tenantID && p.Type == pt && p.IsActive {
			return p, nil
		}
	}
	return ProviderConfig{}, ErrProviderNotFound
}

func (r *MemoryResolver) DefaultProvider(_ context.Context, tenantID string) (ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.TenantID == tenantID && p.IsDefault && p.IsActive {
			return p, nil
		}
	}
	return ProviderConfig{}, ErrProviderNotFound
}

func (r *MemoryResolver) NumberByDialed(_ context.Context, dialed string) (PhoneNumber, ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.numbers {
		if n.Number != dialed || !n.IsActive {
			continue
		}
		for _, p := range r.providers {
			if p.ID == n.ProviderID && p.IsActive {
				return n, p, nil
			}
		}
		return PhoneNumber{}, ProviderConfig{}, ErrProviderNotFound
	}
	return PhoneNumber{}, ProviderConfig{}, ErrNumberNotFound
}
