// Command server runs the FieldLog ingest server: the HTTP sync API, the
// notification stream, metrics and the gRPC health service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/fieldlog/internal/server"
	"github.com/dmitrijs2005/fieldlog/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldlog server: %v\n", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
