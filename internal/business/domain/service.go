package domain

import "context"

// Service is the aggregate writer plus the aggregate read used by dashboards.
type Service interface {
	Create(ctx context.Context, input ProfileInput) (Business, error)
	Update(ctx context.Context, id string, input ProfileInput) (Business, error)
	Get(ctx context.Context, id string) (Aggregate, error)
}
