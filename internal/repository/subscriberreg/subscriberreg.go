// Package subscriberreg resolves config.SubscriberModel to a
// repository.SubscriberRepository constructor (spec.md §9: "replace the
// source's pluggable content-type lookup for the subscriber model with a
// single typed SubscriberRepository selected at boot by configuration key
// NUNTIUS_SUBSCRIBER_MODEL — a string resolved to a repository constructor
// via a registry"). Only "postgres" is registered; the registry exists so a
// future model can be added without touching cmd/*/main.go.
package subscriberreg

import (
	"database/sql"
	"fmt"

	"github.com/ignite/nuntius/internal/config"
	"github.com/ignite/nuntius/internal/repository"
	"github.com/ignite/nuntius/internal/repository/postgres"
)

// Constructor builds a SubscriberRepository over an open database handle.
type Constructor func(db *sql.DB) repository.SubscriberRepository

var constructors = map[config.SubscriberModel]Constructor{
	"postgres": func(db *sql.DB) repository.SubscriberRepository { return postgres.NewSubscriberRepo(db) },
}

// Register adds or replaces the constructor for a model name. Not
// goroutine-safe; call only during package init or before Resolve is used
// from multiple goroutines.
func Register(model config.SubscriberModel, ctor Constructor) {
	constructors[model] = ctor
}

// Resolve looks up the constructor for model and builds a repository over
// db. Returns an error if the model name is not registered.
func Resolve(model config.SubscriberModel, db *sql.DB) (repository.SubscriberRepository, error) {
	ctor, ok := constructors[model]
	if !ok {
		return nil, fmt.Errorf("subscriberreg: unknown subscriber model %q", model)
	}
	return ctor(db), nil
}
