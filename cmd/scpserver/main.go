// Command scpserver runs the SCP chat server with its HTTP admin surface.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"scpchat/internal/app"
	"scpchat/internal/config"
)

func main() {
	code, err := run()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

// run starts the application and blocks until SIGINT or SIGTERM has been
// handled. It returns the process exit code.
func run() (int, error) {
	// STEP 1: Load configuration with precedence (file > env > defaults)
	application, cfg, err := setup(os.Getenv("SCPCHAT_CONFIG_FILE"))
	if err != nil {
		return 1, err
	}

	// STEP 2: Bind listeners
	if err := application.Start(context.Background()); err != nil {
		return 1, fmt.Errorf("failed to start application: %w", err)
	}

	log.Printf("SCP clients: %s", application.Addr())
	if addr := application.HTTPAddr(); addr != "" {
		log.Printf("HTTP API: http://%s/api/rooms, WebSocket: ws://%s/ws", addr, addr)
	}
	log.Println("Press Ctrl+C to shutdown")

	// STEP 3: Stop on signal within the shutdown timeout
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"scpchat": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return application.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("scpserver exited with code: %d", exitCode)
	return exitCode, nil
}

// setup loads the configuration and builds the application without starting it.
func setup(configPath string) (*app.Application, *config.Config, error) {
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create application: %w", err)
	}
	return application, cfg, nil
}
