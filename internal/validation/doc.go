// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package validation wraps go-playground/validator v10 behind one
// shared instance with the request vocabulary of the ops API.
//
// The validator is built once and reused; struct reflection metadata is
// cached inside it, so validating a request type after the first call
// costs microseconds. One custom tag is registered:
//
//   - hexhash: a full 64-character lowercase hex identity token, the
//     form study and trial hashes take in API paths. The check is the
//     hashing package's own, so the boundary accepts exactly what the
//     stores produce.
//
// # Validating a request
//
//	type TrialsRequest struct {
//	    StudyHash string `validate:"required,hexhash"`
//	    State     string `validate:"omitempty,oneof=pending running complete pruned failed"`
//	    Limit     int    `validate:"min=1,max=1000"`
//	}
//
//	if errs := validation.ValidateStruct(&req); errs != nil {
//	    apiErr := errs.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
//
// ValidateStruct returns Errors, a slice of FieldError values carrying
// the failed field, tag, parameter, offending value, and a rendered
// message ("StudyHash must be a 64-character lowercase hex hash").
//
// # Envelope rendering
//
// ToAPIError shapes failures for the response envelope's error block.
// A single failure keeps its message with field/tag/value details; a
// batch is joined "Field: message; Field: message" with the individual
// entries under a details.fields array. The APIError type is declared
// here, not imported from internal/api, so the dependency stays
// one-way.
package validation
