// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package authorization decides whether a caller may run a command.
//
// Two read-only tables drive the decision, both loaded once at startup:
//
//   - Descriptors name every command and whether its feature toggle is
//     on. A command with no descriptor, or with Enabled false, is
//     unreachable for everyone.
//   - The [PermissionMap] maps a descriptor's permission key to the role
//     ids that may use it. A missing key or an empty role list denies
//     everyone.
//
// A caller is allowed when at least one of their roles appears in the
// mapped role set. [Gate.Authorize] is a pure function of the tables
// and its arguments, so the same Gate is shared by every goroutine
// without locking.
//
// Role ids are opaque strings. Discord role snowflakes exceed the
// float64 mantissa and are never round-tripped through a number type.
package authorization
