// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"errors"
	"reflect"
	"testing"
)

const (
	adminRole     = "1083746027162173440"
	moderatorRole = "1083746027162173441"
	memberRole    = "1083746027162173442"
)

func testGate() *Gate {
	return NewGate(
		[]Descriptor{
			{Key: "startserver", Enabled: true},
			{Key: "stopserver", Enabled: true},
			{Key: "softrestart", PermissionKey: "restartserver", Enabled: true},
			{Key: "restartserver", Enabled: true},
			{Key: "console", Enabled: false},
			{Key: "fetchlogs", Enabled: true},
			{Key: "onlineplayers", Enabled: true},
		},
		PermissionMap{
			"startserver":   {adminRole, moderatorRole},
			"stopserver":    {adminRole},
			"restartserver": {adminRole},
			"console":       {adminRole},
			"fetchlogs":     {adminRole},
			"onlineplayers": {},
		},
	)
}

func TestAuthorize(t *testing.T) {
	gate := testGate()

	tests := []struct {
		name    string
		command string
		roles   []string
		want    Result
	}{
		{
			name:    "matching role allows",
			command: "startserver",
			roles:   []string{memberRole, moderatorRole},
			want:    Result{Decision: Allow, PermissionKey: "startserver", MatchedRoles: []string{moderatorRole}},
		},
		{
			name:    "multiple matches reported sorted",
			command: "startserver",
			roles:   []string{moderatorRole, adminRole, adminRole},
			want:    Result{Decision: Allow, PermissionKey: "startserver", MatchedRoles: []string{adminRole, moderatorRole}},
		},
		{
			name:    "disjoint roles deny",
			command: "stopserver",
			roles:   []string{moderatorRole, memberRole},
			want:    Result{Decision: Deny, Reason: ReasonAuthorizationDenied, PermissionKey: "stopserver"},
		},
		{
			name:    "no roles deny",
			command: "stopserver",
			roles:   nil,
			want:    Result{Decision: Deny, Reason: ReasonAuthorizationDenied, PermissionKey: "stopserver"},
		},
		{
			name:    "disabled toggle denies admin",
			command: "console",
			roles:   []string{adminRole},
			want:    Result{Decision: Deny, Reason: ReasonFeatureDisabled, PermissionKey: "console"},
		},
		{
			name:    "unknown command",
			command: "systemreboot",
			roles:   []string{adminRole},
			want:    Result{Decision: Deny, Reason: ReasonNoPermissionConfigured},
		},
		{
			name:    "empty role list denies all",
			command: "onlineplayers",
			roles:   []string{adminRole},
			want:    Result{Decision: Deny, Reason: ReasonNoPermissionConfigured, PermissionKey: "onlineplayers"},
		},
		{
			name:    "shared permission key",
			command: "softrestart",
			roles:   []string{adminRole},
			want:    Result{Decision: Allow, PermissionKey: "restartserver", MatchedRoles: []string{adminRole}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := gate.Authorize(test.command, test.roles)
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("Authorize(%q, %v) = %+v, want %+v", test.command, test.roles, got, test.want)
			}
		})
	}
}

func TestAuthorizeMissingPermissionEntry(t *testing.T) {
	gate := NewGate([]Descriptor{{Key: "roundrestart", Enabled: true}}, PermissionMap{})
	result := gate.Authorize("roundrestart", []string{adminRole})
	if result.Allowed() || result.Reason != ReasonNoPermissionConfigured {
		t.Fatalf("got %+v, want deny/no permission configured", result)
	}
}

func TestFeatureToggleGatesOnlyWhenEnabled(t *testing.T) {
	permissions := PermissionMap{"fetchlogs": {adminRole}}
	for _, enabled := range []bool{false, true} {
		gate := NewGate([]Descriptor{{Key: "fetchlogs", Enabled: enabled}}, permissions)
		result := gate.Authorize("fetchlogs", []string{adminRole})
		if result.Allowed() != enabled {
			t.Errorf("enabled=%v: Allowed() = %v", enabled, result.Allowed())
		}
	}
}

func TestZeroGateDeniesEverything(t *testing.T) {
	var gate *Gate
	if result := gate.Authorize("startserver", []string{adminRole}); result.Allowed() {
		t.Fatalf("nil gate allowed: %+v", result)
	}
	if got := gate.Commands(); got != nil {
		t.Fatalf("nil gate Commands() = %v", got)
	}
}

func TestNewGateCopiesInputs(t *testing.T) {
	roles := []string{adminRole}
	permissions := PermissionMap{"startserver": roles}
	gate := NewGate([]Descriptor{{Key: "startserver", Enabled: true}}, permissions)

	roles[0] = memberRole
	permissions["startserver"] = nil

	if !gate.Authorize("startserver", []string{adminRole}).Allowed() {
		t.Fatal("mutating the caller's map changed the gate")
	}
}

func TestCommandsPreservesOrder(t *testing.T) {
	want := []string{"startserver", "stopserver", "softrestart", "restartserver", "console", "fetchlogs", "onlineplayers"}
	if got := testGate().Commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Commands() = %v, want %v", got, want)
	}
}

func TestDecisionAndReasonStrings(t *testing.T) {
	if Allow.String() != "allow" || Deny.String() != "deny" {
		t.Errorf("Decision strings: %q %q", Allow, Deny)
	}
	reasons := map[DenyReason]string{
		ReasonAuthorizationDenied:    "authorization denied",
		ReasonFeatureDisabled:        "feature disabled",
		ReasonNoPermissionConfigured: "no permission configured",
		DenyReason(99):               "unknown",
	}
	for reason, want := range reasons {
		if got := reason.String(); got != want {
			t.Errorf("DenyReason(%d).String() = %q, want %q", int(reason), got, want)
		}
	}
}

func TestCheckReturnsDeniedError(t *testing.T) {
	gate := NewGate(
		[]Descriptor{{Key: "systemreboot", Enabled: true}},
		PermissionMap{"systemreboot": {"100"}},
	)
	if _, err := gate.Check("systemreboot", []string{"100"}); err != nil {
		t.Fatalf("Check allowed role: %v", err)
	}
	_, err := gate.Check("systemreboot", []string{"200"})
	var denied *DeniedError
	if !errors.As(err, &denied) || !errors.Is(err, ErrDenied) {
		t.Fatalf("Check error = %v, want *DeniedError", err)
	}
	if denied.Result.Reason != ReasonAuthorizationDenied {
		t.Fatalf("reason = %v", denied.Result.Reason)
	}
}
