// Package triage is the business boundary for warden's alert-triage
// decision pipeline. It defines the Service (multi-phase analysis,
// auto-resolution gating, triage assignment, classification), the
// RecordStore interface (alert persistence and timeline emission), the
// response models handed to callers, and the Prometheus metrics for the
// subsystem.
package triage
