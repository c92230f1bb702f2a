// Package resolver classifies inbound hostnames into tenant or
// marketing-site requests.
package resolver

import (
	"context"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/scholar-sites/sitesync/internal/model"
)

// Store is the slice of the persistence contract the resolver reads.
type Store interface {
	GetDomainByHostname(ctx context.Context, hostname string) (*model.Domain, error)
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
}

// Resolution is the outcome of classifying a hostname. Marketing is true
// whenever no serving tenant owns the host.
type Resolution struct {
	Tenant    *model.Tenant `json:"tenant,omitempty"`
	Domain    *model.Domain `json:"domain,omitempty"`
	Marketing bool          `json:"marketing"`
}

// Resolver maps request hostnames to tenant context.
type Resolver struct {
	store           Store
	marketingHosts  map[string]struct{}
	previewSuffixes []string
}

// New creates a Resolver. marketingHosts is the static allow-list served
// as the generic site; previewSuffixes match ephemeral deploy-preview
// hostnames.
func New(store Store, marketingHosts, previewSuffixes []string) *Resolver {
	hosts := make(map[string]struct{}, len(marketingHosts))
	for _, h := range marketingHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &Resolver{
		store:           store,
		marketingHosts:  hosts,
		previewSuffixes: previewSuffixes,
	}
}

var marketing = Resolution{Marketing: true}

// Resolve classifies a request hostname. It never fails: unknown
// hostnames, deactivated tenants, and store errors all fall back to the
// marketing site so every request gets a response.
func (r *Resolver) Resolve(ctx context.Context, host string) Resolution {
	hostname := NormalizeHost(host)
	if hostname == "" {
		return marketing
	}

	if _, ok := r.marketingHosts[hostname]; ok {
		return marketing
	}
	for _, suffix := range r.previewSuffixes {
		if strings.HasSuffix(hostname, suffix) {
			return marketing
		}
	}

	domain, err := r.store.GetDomainByHostname(ctx, hostname)
	if err != nil {
		zap.L().Warn("domain lookup failed, serving marketing site",
			zap.String("hostname", hostname),
			zap.Error(err),
		)
		return marketing
	}
	if domain == nil {
		return marketing
	}

	tenant, err := r.store.GetTenant(ctx, domain.TenantID)
	if err != nil {
		zap.L().Warn("tenant lookup failed, serving marketing site",
			zap.String("hostname", hostname),
			zap.String("tenant_id", domain.TenantID),
			zap.Error(err),
		)
		return marketing
	}
	if tenant == nil || !tenant.Status.Serves() {
		return marketing
	}

	return Resolution{Tenant: tenant, Domain: domain}
}

// NormalizeHost strips any port suffix and lower-cases the hostname.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
