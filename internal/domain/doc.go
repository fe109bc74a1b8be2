// Package domain models environmental readings, surge predictions, and
// outbreak records for the surge forecast service.
//
// # Signals
//
// Two independent signal types are tracked per location:
//
//	weather      temperature (°C), humidity (%), precipitation (mm),
//	             wind speed (m/s), pressure (hPa). Mandatory: a surge
//	             prediction cannot be produced without a weather reading.
//	air_quality  US-EPA style AQI plus component concentrations
//	             (PM2.5, PM10, NO2, O3 in µg/m³). Optional: when no
//	             provider data is obtainable, a heuristic estimate is
//	             derived from the weather reading and persisted with
//	             source "estimated".
//
// Readings are immutable. A refresh always appends a new reading; "latest"
// is defined by maximum capture timestamp, never by write order, so
// concurrent writers need no coordination.
//
// # AQI bands
//
// The risk scorer uses the standard index breakpoints as contribution
// tiers:
//
//	0-50 good | 51-100 moderate | 101-150 sensitive | >150 unhealthy
//
// # Outbreak records
//
// An outbreak record tracks one (location, disease) observation. Within
// the dedup window (24h by default) at most one record per pair is
// current: a second observation merges into the first. Merges are
// commutative on counts (max) and medicine lists (union) so replays and
// concurrent reconcilers converge to the same state. Provenance is
// recorded as "reasoning" (external reasoning service) or "fallback"
// (heuristic, non-authoritative).
//
// # Predictions
//
// A prediction is the immutable output of one synthesis run, tagged with
// the engine version that produced it and carrying the full feature
// snapshot for audit. Lookups are by descending generation timestamp.
package domain
