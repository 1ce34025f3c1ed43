// Package notify resolves approver and escalation roles to identities.
package notify

import (
	"context"
	"sort"
	"sync"
)

// AnyOrg keys role assignments that apply to every tenant.
const AnyOrg = "*"

// RoleResolver returns the identities holding role within a tenant.
type RoleResolver interface {
	Resolve(ctx context.Context, orgID, role string) ([]string, error)
}

// StaticResolver serves role assignments from a fixed table, typically loaded from the seed file.
type StaticResolver struct {
	mu    sync.RWMutex
	roles map[string]map[string][]string
}

// NewStaticResolver builds a resolver from org -> role -> identities.
func NewStaticResolver(assignments map[string]map[string][]string) *StaticResolver {
	r := &StaticResolver{roles: make(map[string]map[string][]string)}
	for org, roles := range assignments {
		for role, ids := range roles {
			r.Assign(org, role, ids...)
		}
	}
	return r
}

// Assign adds identities to a role.
func (r *StaticResolver) Assign(orgID, role string, identities ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[orgID] == nil {
		r.roles[orgID] = make(map[string][]string)
	}
	r.roles[orgID][role] = append(r.roles[orgID][role], identities...)
}

// Resolve merges tenant-specific and global assignments, deduplicated and sorted.
func (r *StaticResolver) Resolve(_ context.Context, orgID, role string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := map[string]struct{}{}
	for _, org := range []string{orgID, AnyOrg} {
		for _, id := range r.roles[org][role] {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveAll resolves each role and returns the union.
func ResolveAll(ctx context.Context, resolver RoleResolver, orgID string, roles []string) ([]string, error) {
	if resolver == nil {
		return nil, nil
	}
	set := map[string]struct{}{}
	for _, role := range roles {
		ids, err := resolver.Resolve(ctx, orgID, role)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
