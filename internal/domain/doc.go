// Package domain models the weatherline data: credential records, per-location
// weather records with their forecast timelines, and the nearest-location
// resolution used when a query has no exact key.
//
// # Data conventions
//
// Location keys are free-form strings and are NOT unique across the stored
// record set: repeated provisioning appends, never revises, so two records
// for the same location can coexist. Lookups by key resolve to the first
// record in insertion order.
//
// Forecast entries form a timeline; their order is meaningful and must be
// carried through parsing, storage, and rendering unchanged.
//
// Coordinates are raw latitude/longitude degrees. Distances are flat
// Euclidean in degree-space (see [Distance]) — not great-circle — because the
// radius threshold is defined in the same units and only relative ordering
// matters to the resolver.
//
// Roles are restricted to "admin" and "user"; accounts seeded with any other
// role exist but can never log in.
package domain
