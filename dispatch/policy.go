package dispatch

import (
	"context"
	"fmt"
	"slices"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
)

// PermissionPolicy decides whether a permission-gated capability may run.
// It is consulted only for descriptors with RequiresPermission set, after
// argument coercion and before the executor starts. Returning a non-nil error
// yields a KindPermissionDenied failure carrying that error.
type PermissionPolicy interface {
	Authorize(ctx context.Context, d capability.Descriptor, args capability.Args) error
}

// PermissionPolicyFunc adapts a function to PermissionPolicy.
type PermissionPolicyFunc func(ctx context.Context, d capability.Descriptor, args capability.Args) error

func (f PermissionPolicyFunc) Authorize(ctx context.Context, d capability.Descriptor, args capability.Args) error {
	return f(ctx, d, args)
}

// GrantedPermissions is a policy that allows a capability when every one of
// its required permissions is in the granted set.
type GrantedPermissions []string

func (g GrantedPermissions) Authorize(_ context.Context, d capability.Descriptor, _ capability.Args) error {
	for _, p := range d.RequiredPermissions {
		if !slices.Contains(g, p) {
			return fmt.Errorf("permission %q not granted", p)
		}
	}
	return nil
}
