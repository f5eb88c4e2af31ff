// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free from
// ORM concerns.
//
// Key principles:
// 1. Domain entities carry no GORM tags or infrastructure concerns
// 2. Persistence models hold all GORM annotations and table mappings
// 3. ToDomain/FromDomain mappers convert between the two
// 4. Repositories only ever touch persistence models
//
// Structure:
// - integration.go: OAuth credential and per-tenant integration config models
// - reconcile.go: reconciliation session and per-issue result audit rows
// - sequence.go: per-department job number sequence counters
package models
