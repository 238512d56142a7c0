// Package workflow wraps the generate, compile, and assemble pipeline in
// durable, retry-aware runs. Every error crossing a step boundary is
// classified as retryable or fatal before it propagates; retryable failures
// back off exponentially within a bounded attempt budget. Completed steps are
// journaled through the scene store so a restarted process resumes a run
// instead of repeating finished work, and side-effecting steps carry
// deterministic idempotency keys so a repeat does not duplicate artifacts.
package workflow
