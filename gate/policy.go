package gate

import (
	"context"
	"fmt"
)

// Policy groups the standard CRUD decisions for one resource type. Create
// takes no resource because none exists yet.
type Policy[R any] interface {
	View(ctx context.Context, principal Principal, resource R) error
	Create(ctx context.Context, principal Principal) error
	Update(ctx context.Context, principal Principal, resource R) error
	Delete(ctx context.Context, principal Principal, resource R) error
}

// BindPolicy registers the policy's decisions as <prefix>.view,
// <prefix>.create, <prefix>.update, and <prefix>.delete. The payload passed
// to Authorize must be the resource type, except for create which ignores it.
func BindPolicy[R any](g *Gate, prefix string, policy Policy[R], opts ...RegisterOption) error {
	if err := g.Register(prefix+".view", withResource(policy.View), opts...); err != nil {
		return err
	}
	if err := g.Register(prefix+".create", func(ctx context.Context, p Principal, _ any) error {
		return policy.Create(ctx, p)
	}, opts...); err != nil {
		return err
	}
	if err := g.Register(prefix+".update", withResource(policy.Update), opts...); err != nil {
		return err
	}
	return g.Register(prefix+".delete", withResource(policy.Delete), opts...)
}

func withResource[R any](decide func(context.Context, Principal, R) error) CheckFunc {
	return func(ctx context.Context, p Principal, payload any) error {
		resource, ok := payload.(R)
		if !ok {
			return fmt.Errorf("expected payload of type %T, got %T", resource, payload)
		}
		return decide(ctx, p, resource)
	}
}
