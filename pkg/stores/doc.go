// Package stores provides the SQLite-backed local mirror of the provider
// inventory: regions, zones, public images, and instances. Regions, zones
// and images use transactional scoped replacement; instances use upsert
// with a staleness flag so their IDs survive refreshes.
package stores
