// Package app wires the chat core, the audit store and the HTTP surface into
// one Application with ordered Start and Stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"scpchat/internal/api"
	"scpchat/internal/config"
	"scpchat/internal/database"
	"scpchat/internal/directory"
	"scpchat/internal/server"
	pkgdatabase "scpchat/pkg/database"
	"scpchat/pkg/interfaces"
)

// Application coordinates all system components.
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	directory  *directory.Directory
	chatServer *server.Server
	apiServer  *api.Server
	httpServer *http.Server

	httpListener net.Listener
	httpDone     chan struct{}
}

// NewApplication builds every component in dependency order:
// Database → Directory → Handler → Server → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{config: cfg}

	// STEP 1: Open the audit store when enabled
	var recorder interfaces.EventRecorder = interfaces.NopRecorder{}
	var audit interfaces.AuditStore
	if cfg.Database.Enabled {
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Database.Path
		dbConfig.ConnMaxLifetime = cfg.Database.Timeout
		dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3
		if cfg.Database.QueueSize > 0 {
			dbConfig.QueueSize = cfg.Database.QueueSize
		}

		dbManager, err := database.NewManager(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		app.dbManager = dbManager
		recorder = dbManager
		audit = dbManager
	} else {
		log.Println("Connection audit disabled")
	}

	// STEP 2: Build the shared directory with the configured rooms
	app.directory = directory.New(cfg.Server.Rooms)

	// STEP 3: Connection handler and TCP server
	handler := server.NewHandler(app.directory, recorder)
	app.chatServer = server.New(handler, server.Options{
		Addr:         cfg.Server.Addr(),
		WriteTimeout: cfg.Server.WriteTimeout,
		DrainTimeout: cfg.Server.DrainTimeout,
	})

	// STEP 4: Admin API and WebSocket endpoint
	if cfg.HTTP.Enabled {
		app.apiServer = api.NewServer(app.directory, audit)

		mux := http.NewServeMux()
		mux.Handle("/api/", app.apiServer)
		mux.Handle("/health", app.apiServer)
		mux.HandleFunc("/ws", app.chatServer.ServeWebSocket)

		app.httpServer = &http.Server{
			Addr:         cfg.HTTP.Addr(),
			Handler:      mux,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
	}

	return app, nil
}

// Start binds the SCP listener and then the HTTP listener. Both are bound
// before Start returns, so Addr and HTTPAddr are valid afterwards.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting scpchat on %s", app.config.Server.Addr())

	// STEP 1: Accept chat clients
	if err := app.chatServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat server: %w", err)
	}

	// STEP 2: Serve the admin API and WebSocket upgrades
	if app.httpServer != nil {
		var lc net.ListenConfig
		listener, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
		if err != nil {
			_ = app.chatServer.Stop(ctx)
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		app.httpListener = listener
		app.httpDone = make(chan struct{})

		go func() {
			defer close(app.httpDone)
			if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server error: %v", err)
			}
		}()
		log.Printf("HTTP API listening on %s", listener.Addr())
	}

	log.Printf("scpchat started successfully")
	return nil
}

// Stop shuts down in reverse dependency order: HTTP → Server → Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down scpchat")

	var errs []error

	// STEP 1: Stop HTTP so no new WebSocket sessions arrive
	if app.httpListener != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			errs = append(errs, err)
		}
		<-app.httpDone
	}

	// STEP 2: Close the listener and every chat connection
	if err := app.chatServer.Stop(ctx); err != nil && !errors.Is(err, server.ErrServerNotActive) {
		log.Printf("Chat server shutdown error: %v", err)
		errs = append(errs, err)
	}

	// STEP 3: Flush and close the audit store
	if app.dbManager != nil {
		if err := app.dbManager.Flush(ctx); err != nil {
			log.Printf("Audit flush error: %v", err)
		}
		if err := app.dbManager.Close(); err != nil {
			log.Printf("Database shutdown error: %v", err)
			errs = append(errs, err)
		}
	}

	log.Printf("scpchat shutdown complete")
	return errors.Join(errs...)
}

// Addr is the bound SCP listener address, or "" before Start.
func (app *Application) Addr() string {
	if addr := app.chatServer.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// HTTPAddr is the bound HTTP address, or "" when HTTP is disabled or not started.
func (app *Application) HTTPAddr() string {
	if app.httpListener == nil {
		return ""
	}
	return app.httpListener.Addr().String()
}

// Directory exposes the shared chat state.
func (app *Application) Directory() *directory.Directory {
	return app.directory
}
