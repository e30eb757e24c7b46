package main

import (
	"github.com/mediguard/order/internal/app"
	"github.com/mediguard/order/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
