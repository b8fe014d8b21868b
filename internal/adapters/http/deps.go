package http

import (
	"github.com/nats-io/nats.go"
	"github.com/tilepass/tilepass/internal/adapters/postgres"
	"github.com/tilepass/tilepass/internal/adapters/valkey"
	"github.com/tilepass/tilepass/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Styles  *usecases.StyleService
	Sources *usecases.SourceService
	Eval    *usecases.EvalService
	NATS    *nats.Conn
	DB      *postgres.DB
	Cache   *valkey.Cache
}
