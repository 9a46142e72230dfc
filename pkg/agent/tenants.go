package agent

import (
	"context"
	"fmt"
	"strings"
)

// TenantResolver looks up routing data for a tenant. An empty tenantID
// selects the deployment default.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (ClientConfig, error)
}

// StaticTenants resolves tenants from a fixed table loaded at startup.
type StaticTenants struct {
	tenants   map[string]ClientConfig
	defaultID string
}

// NewStaticTenants builds a resolver. Each config's TenantID defaults to its
// map key.
func NewStaticTenants(tenants map[string]ClientConfig, defaultID string) *StaticTenants {
	table := make(map[string]ClientConfig, len(tenants))
	for id, cfg := range tenants {
		if cfg.TenantID == "" {
			cfg.TenantID = id
		}
		table[id] = cfg
	}
	return &StaticTenants{tenants: table, defaultID: defaultID}
}

// Resolve implements TenantResolver.
func (s *StaticTenants) Resolve(ctx context.Context, tenantID string) (ClientConfig, error) {
	id := strings.TrimSpace(tenantID)
	if id == "" {
		id = s.defaultID
	}
	if id == "" {
		return ClientConfig{}, fmt.Errorf("%w: no tenant given and no default tenant configured", ErrUnknownTenant)
	}
	cfg, ok := s.tenants[id]
	if !ok {
		return ClientConfig{}, fmt.Errorf("%w: %q", ErrUnknownTenant, id)
	}
	return cfg, nil
}
