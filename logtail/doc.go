// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package logtail reads the most recent game console output.
//
// A [Retriever] is stateless: every [Retriever.Tail] call reads its
// [Source] afresh and returns up to maxLines lines, oldest first. Two
// sources exist:
//
//   - [PaneSource] captures tmux scrollback. It sees what an attached
//     operator sees, bounded by the pane's history-limit.
//   - [FileSource] reads the console log written by tmux pipe-pane. It
//     survives rotation: if the file is replaced while being read, the
//     replacement is read too and the two are stitched together. A
//     short current file is topped up from the rotated predecessor.
//
// Reads are bounded by a timeout on the injected clock. A read that
// times out or fails yields whatever was read so far and marks the
// result incomplete; it never returns an error to the caller.
//
// [Truncate] fits text into a transport limit, keeping the newest
// output behind an explicit "[truncated]" marker.
package logtail
