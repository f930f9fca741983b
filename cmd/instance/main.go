package main

import (
	"context"
	"log"

	"github.com/klinikos/medsync/internal/instance"
	"github.com/klinikos/medsync/internal/instance/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := instance.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
