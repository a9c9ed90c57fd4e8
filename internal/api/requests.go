// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

// StudyRequest represents the validated path parameters for the
// /studies/{hash} endpoint.
//
// Fields:
//   - StudyHash: Full 64-character lowercase hex study hash
type StudyRequest struct {
	StudyHash string `validate:"required,hexhash"`
}

// TrialsRequest represents the validated parameters for the
// /studies/{hash}/trials endpoint.
//
// Fields:
//   - StudyHash: Full 64-character lowercase hex study hash
//   - State: Optional lifecycle filter (pending, running, complete, pruned, failed)
type TrialsRequest struct {
	StudyHash string `validate:"required,hexhash"`
	State     string `validate:"omitempty,oneof=pending running complete pruned failed"`
}
