// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"errors"
	"fmt"
)

// ErrDenied is matched by every *DeniedError.
var ErrDenied = errors.New("not authorized")

// DeniedError carries a Deny result to callers that authorize as part
// of a larger operation.
type DeniedError struct {
	CommandKey string
	Result     Result
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", e.CommandKey, e.Result.Reason)
}

// Is matches ErrDenied.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Check authorizes commandKey and returns a *DeniedError when the
// result is Deny.
func (g *Gate) Check(commandKey string, roles []string) (Result, error) {
	result := g.Authorize(commandKey, roles)
	if !result.Allowed() {
		return result, &DeniedError{CommandKey: commandKey, Result: result}
	}
	return result, nil
}
