package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/registry"
)

type Graph struct {
	Name string
	Host string
	SDL  string
}

// RunRegistry starts an empty schema registry and blocks until
// SIGTERM/SIGINT/SIGKILL triggers a graceful shutdown. graphs must be
// non-empty, but its entries are not loaded into the registry; subgraphs
// become known only when they register over HTTP.
func RunRegistry(graphs []*Graph) error {
	if len(graphs) == 0 {
		return errors.New("no graphs provided")
	}

	reg := registry.NewRegistry()
	reg.Start()

	srv := &http.Server{
		Addr:    ":8080",
		Handler: reg,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt, os.Kill)
	defer stop()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
