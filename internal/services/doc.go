// Package services holds the shared plumbing used by every pipeline
// collaborator: sentinel error markers with stage-aware wrapping, and
// context annotations (video, scene, step, correlation id) that the logging
// package turns into structured fields.
//
// The sentinels are the contract between collaborators and the workflow
// engine. A collaborator never decides whether an error is retryable; it
// tags the failure with the closest marker and lets workflow classification
// make the call.
package services
