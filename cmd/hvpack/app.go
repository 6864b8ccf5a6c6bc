package main

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/heavy-go/hv/internal/component"
	"github.com/heavy-go/hv/internal/config"
	"github.com/heavy-go/hv/internal/objtable"
	"github.com/heavy-go/hv/internal/persist"
	"github.com/heavy-go/hv/internal/scripting"
	"github.com/heavy-go/hv/internal/serialize"
	"github.com/heavy-go/hv/internal/spaces"
)

// app holds the services shared by every subcommand. Services are created on
// first use.
type app struct {
	cfg *config.Config
	log *zap.Logger

	engine *scripting.Engine
	tables *objtable.Registry
	codecs *serialize.Registry
	ser    *serialize.Serializer
	spaces *spaces.Registry
	db     *persist.DB
}

func (a *app) runtime() (*serialize.Serializer, error) {
	if a.ser != nil {
		return a.ser, nil
	}
	engine, err := scripting.NewEngine(a.cfg.Scripting.Dir, a.log)
	if err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}
	a.engine = engine
	for _, name := range a.cfg.Scripting.Resources {
		v := engine.State().GetGlobal(name)
		if v == lua.LNil {
			return nil, fmt.Errorf("scripting: resource %q is not a global", name)
		}
		if err := engine.RegisterResource(name, v); err != nil {
			return nil, fmt.Errorf("scripting: %w", err)
		}
	}

	a.tables = objtable.NewRegistry()
	a.codecs = serialize.NewRegistry()
	if err := component.Register(a.codecs); err != nil {
		return nil, err
	}
	if err := a.codecs.Register(a.tables.Codec()); err != nil {
		return nil, err
	}
	a.ser = serialize.NewSerializer(a.codecs, engine, a.log)
	a.spaces = spaces.NewRegistry()
	a.log.Debug("runtime ready",
		zap.Int("codecs", a.codecs.Len()),
		zap.String("fingerprint", fmt.Sprintf("%016x", a.codecs.Fingerprint())))
	return a.ser, nil
}

func (a *app) database(ctx context.Context) (*persist.SaveRepo, error) {
	if a.db == nil {
		connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err := persist.NewDB(connCtx, a.cfg.Database, a.log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.db = db
		if a.cfg.Save.RunMigrations {
			if err := db.RunMigrations(connCtx); err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
	}
	return persist.NewSaveRepo(a.db), nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
