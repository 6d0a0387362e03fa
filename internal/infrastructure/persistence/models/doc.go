// Package models contains the GORM models for the ledger tables.
// Domain types stay free of ORM tags; each model converts to and from its
// domain counterpart with ToDomain and a ...FromDomain constructor.
package models
