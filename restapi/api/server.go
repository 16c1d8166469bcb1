package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DefaultAddress is where Serve listens if no address was given
const DefaultAddress = ":8080"

// NewRouter creates the gin engine with all /api/v1 routes. Every handler talks to usbmuxd through client.
func NewRouter(client *usbmux.Client, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(MyLogger(logger), gin.Recovery(), ClientMiddleware(client))

	v1 := router.Group("/api/v1")
	registerRoutes(v1)
	return router
}

// Serve runs the REST API on address until ctx is cancelled
func Serve(ctx context.Context, client *usbmux.Client, address string) error {
	if address == "" {
		address = DefaultAddress
	}
	logger := logrus.StandardLogger()
	server := &http.Server{
		Addr:              address,
		Handler:           NewRouter(client, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed shutting down REST API")
			server.Close()
		}
	}()
	logger.WithFields(logrus.Fields{"address": address, "usbmuxd": client.Config().Address}).Info("starting REST API")
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
