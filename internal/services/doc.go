// Package services defines shared utilities consumed by the enrichment engine
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, library IDs, and catalog item IDs
//     for logging.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (not found vs transient vs configuration) with errors.Is.
//
// Use these helpers when wiring new source clients or run logic so operational
// behaviour (error handling, observability, retries) stays uniform.
package services
