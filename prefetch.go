// Package prefetch provides a viewport-aware link prefetch scheduler.
// It watches link candidates, decides which ones are worth fetching
// speculatively based on visibility, origin policy and user filters, and
// issues those fetches under a bounded, budgeted regime.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., goquery/, rod/, sqlite/).
package prefetch
