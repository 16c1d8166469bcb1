package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpaulus/go-usbmux/restapi/api"
	"github.com/danielpaulus/go-usbmux/usbmux"
	log "github.com/sirupsen/logrus"
)

// @title           go-usbmux API
// @version         0.01
// @description     Exposes usbmuxd device listing and events as REST API calls.

// @host      localhost:8080
// @BasePath  /api/v1
func main() {
	log.WithFields(log.Fields{"args": os.Args}).Infof("starting go-usbmux-API")
	client, err := usbmux.NewClientSimple()
	if err != nil {
		log.WithError(err).Fatal("invalid usbmuxd address")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	address := os.Getenv("GO_USBMUX_API_ADDRESS")
	if err := api.Serve(ctx, client, address); err != nil {
		log.WithError(err).Fatal("REST API failed")
	}
}
