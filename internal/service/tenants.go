package service

import (
	"context"
	"fmt"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

type tenantRepository interface {
	List(ctx context.Context) ([]domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}

// tenantScope is one tenant with its settings parsed for a single job run.
type tenantScope struct {
	tenant   domain.Tenant
	settings domain.AutomationSettings
}

// loadTenants resolves the tenants a job run covers. A tenant filter that
// matches nothing yields an empty list.
func loadTenants(ctx context.Context, repo tenantRepository, opts domain.RunOptions) ([]tenantScope, error) {
	var tenants []domain.Tenant

	if opts.TenantID != "" {
		t, err := repo.GetByID(ctx, opts.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant: %w", err)
		}
		if t != nil {
			tenants = append(tenants, *t)
		}
	} else {
		all, err := repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tenants: %w", err)
		}
		tenants = all
	}

	scopes := make([]tenantScope, 0, len(tenants))
	for _, t := range tenants {
		settings, err := domain.ParseAutomationSettings(t.AutomationSettings)
		if err != nil {
			logger.Warnf("Tenant %s has invalid automation settings, using defaults: %v", t.ID, err)
		}
		scopes = append(scopes, tenantScope{tenant: t, settings: settings})
	}

	return scopes, nil
}

// enabledTenants is loadTenants without the tenants whose automation is off.
func enabledTenants(ctx context.Context, repo tenantRepository, opts domain.RunOptions, job string) ([]tenantScope, error) {
	scopes, err := loadTenants(ctx, repo, opts)
	if err != nil {
		return nil, err
	}

	enabled := scopes[:0]
	for _, sc := range scopes {
		if !sc.settings.Enabled {
			logger.Debugf("[%s tenant=%s] Automation disabled, skipping", job, sc.tenant.ID)
			continue
		}
		enabled = append(enabled, sc)
	}
	return enabled, nil
}
