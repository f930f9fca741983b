package main

import (
	"context"
	"log"

	"github.com/klinikos/medsync/internal/central"
	"github.com/klinikos/medsync/internal/central/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := central.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
