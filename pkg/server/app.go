package server

import (
	"context"
	"log/slog"
	"net/http"

	"site-settings-backend/pkg/config"
	"site-settings-backend/pkg/database"
	"site-settings-backend/pkg/supabase"
)

// App is the assembled backend: the router plus the resources it owns.
type App struct {
	Handler http.Handler
	Store   database.Store
}

// Build wires the Supabase client, store, token resolver and router for cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	client := supabase.New(cfg.SupabaseURL, cfg.SupabaseServiceKey,
		supabase.WithTimeout(cfg.BackendTimeout))

	store, err := database.NewStore(ctx, cfg, client)
	if err != nil {
		return nil, err
	}

	handler, err := NewRouter(Deps{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Resolver: NewResolver(cfg, client),
		Sender:   client,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{Handler: handler, Store: store}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
