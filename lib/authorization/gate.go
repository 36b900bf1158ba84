// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import "sort"

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny means the command must not run.
	Deny Decision = iota

	// Allow means the command may run.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why a check was denied.
type DenyReason int

const (
	// ReasonAuthorizationDenied means roles are configured for the
	// command but the caller holds none of them.
	ReasonAuthorizationDenied DenyReason = iota

	// ReasonFeatureDisabled means the command's feature toggle is off.
	ReasonFeatureDisabled

	// ReasonNoPermissionConfigured means the command has no descriptor,
	// no permission entry, or an empty role list.
	ReasonNoPermissionConfigured
)

// String returns a human-readable reason.
func (r DenyReason) String() string {
	switch r {
	case ReasonAuthorizationDenied:
		return "authorization denied"
	case ReasonFeatureDisabled:
		return "feature disabled"
	case ReasonNoPermissionConfigured:
		return "no permission configured"
	default:
		return "unknown"
	}
}

// Descriptor describes one invocable command.
type Descriptor struct {
	// Key is the command name callers invoke ("startserver").
	Key string

	// PermissionKey selects the role list in the PermissionMap. Usually
	// equal to Key; commands may share a permission key.
	PermissionKey string

	// Enabled is the feature toggle. A disabled command is unreachable
	// regardless of roles.
	Enabled bool
}

// PermissionMap maps a permission key to the role ids allowed to use it.
type PermissionMap map[string][]string

// Result is the outcome of [Gate.Authorize].
type Result struct {
	// Decision is Allow or Deny.
	Decision Decision

	// Reason is why the check was denied. Only meaningful when Decision
	// is Deny.
	Reason DenyReason

	// PermissionKey is the key the command resolved to, empty when the
	// command has no descriptor.
	PermissionKey string

	// MatchedRoles are the caller's roles that granted access, sorted.
	// Empty when denied.
	MatchedRoles []string
}

// Allowed reports whether the decision is Allow.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// Gate evaluates commands against descriptors and permissions. The
// zero value denies everything.
type Gate struct {
	descriptors map[string]Descriptor
	permissions map[string]map[string]struct{}
	order       []string
}

// NewGate builds a Gate from descriptors and permissions. Both inputs
// are copied; later changes by the caller have no effect. A descriptor
// with an empty PermissionKey uses its Key.
func NewGate(descriptors []Descriptor, permissions PermissionMap) *Gate {
	gate := &Gate{
		descriptors: make(map[string]Descriptor, len(descriptors)),
		permissions: make(map[string]map[string]struct{}, len(permissions)),
	}
	for _, descriptor := range descriptors {
		if descriptor.PermissionKey == "" {
			descriptor.PermissionKey = descriptor.Key
		}
		if _, exists := gate.descriptors[descriptor.Key]; !exists {
			gate.order = append(gate.order, descriptor.Key)
		}
		gate.descriptors[descriptor.Key] = descriptor
	}
	for key, roles := range permissions {
		set := make(map[string]struct{}, len(roles))
		for _, role := range roles {
			if role != "" {
				set[role] = struct{}{}
			}
		}
		gate.permissions[key] = set
	}
	return gate
}

// Descriptor returns the descriptor registered for commandKey.
func (g *Gate) Descriptor(commandKey string) (Descriptor, bool) {
	if g == nil {
		return Descriptor{}, false
	}
	descriptor, ok := g.descriptors[commandKey]
	return descriptor, ok
}

// Commands returns every registered command key in registration order.
func (g *Gate) Commands() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.order...)
}

// Authorize decides whether a caller holding roles may run commandKey.
//
// Evaluation:
//  1. No descriptor: deny, no permission configured.
//  2. Feature toggle off: deny, feature disabled (roles are not consulted).
//  3. No role list, or an empty one: deny, no permission configured.
//  4. No overlap with the caller's roles: deny, authorization denied.
//  5. Otherwise allow, reporting the overlapping roles.
func (g *Gate) Authorize(commandKey string, roles []string) Result {
	descriptor, ok := g.Descriptor(commandKey)
	if !ok {
		return Result{Decision: Deny, Reason: ReasonNoPermissionConfigured}
	}
	result := Result{Decision: Deny, PermissionKey: descriptor.PermissionKey}
	if !descriptor.Enabled {
		result.Reason = ReasonFeatureDisabled
		return result
	}

	allowed := g.permissions[descriptor.PermissionKey]
	if len(allowed) == 0 {
		result.Reason = ReasonNoPermissionConfigured
		return result
	}

	var matched []string
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		if _, ok := allowed[role]; ok {
			matched = append(matched, role)
		}
	}
	if len(matched) == 0 {
		result.Reason = ReasonAuthorizationDenied
		return result
	}
	sort.Strings(matched)
	result.Decision = Allow
	result.MatchedRoles = matched
	return result
}
