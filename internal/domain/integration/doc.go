// Package integration defines the contracts between the reconciliation
// engine and the two external platforms: the Pipedrive CRM (deal side)
// and the Xero accounting platform (quote side).
//
// The engine never talks HTTP directly; it goes through the CRMGateway
// and AccountingGateway interfaces defined here. Infrastructure adapters
// implement these interfaces and are responsible for authentication,
// rate-limit admission, and response decoding.
package integration
