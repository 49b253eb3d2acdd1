package main

import (
	"log"

	"github.com/cloudxmr/Wireguard-Manager/config"
	"github.com/cloudxmr/Wireguard-Manager/server"
)

func main() {
	cfg := config.MustLoad()
	app := &server.App{}
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
