package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// CLIENT_KEY holds the *usbmux.Client all handlers use
	CLIENT_KEY = "go_usbmux_client"
	// DEVICE_KEY holds the usbmux.DeviceAttachedInfo found by DeviceMiddleware
	DEVICE_KEY = "go_usbmux_device"
)

// MyLogger logs every request with logrus once it was handled
func MyLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Info("request")
	}
}

// ClientMiddleware makes client available to downstream handlers, use `client(c)` to acquire it.
func ClientMiddleware(client *usbmux.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CLIENT_KEY, client)
		c.Next()
	}
}

func client(c *gin.Context) *usbmux.Client {
	return c.MustGet(CLIENT_KEY).(*usbmux.Client)
}

// DeviceMiddleware makes sure a udid was specified and that a device with that UDID
// is attached to usbmuxd. Will return 404 if the device is not found or 500 if usbmuxd
// could not be asked. Use `device := c.MustGet(DEVICE_KEY).(usbmux.DeviceAttachedInfo)` to acquire the device
// in downstream handlers.
func DeviceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		udid := c.Param("udid")

		if udid == "" {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, GenericResponse{Error: "udid is missing"})
			return
		}
		devices, err := client(c).ListDevices(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, GenericResponse{Error: err.Error()})
			return
		}
		for _, d := range devices {
			if d.Identifier == udid {
				c.Set(DEVICE_KEY, d)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusNotFound, GenericResponse{Error: "device not found on the host"})
	}
}

// LimitNumClientsUDID limits clients to one concurrent request per device UDID at a time
func LimitNumClientsUDID() gin.HandlerFunc {
	maxClients := 1
	semaMap := sync.Map{}
	return func(c *gin.Context) {
		device := c.MustGet(DEVICE_KEY).(usbmux.DeviceAttachedInfo)
		semaIntf, _ := semaMap.LoadOrStore(device.Identifier, make(chan struct{}, maxClients))
		sema := semaIntf.(chan struct{})
		sema <- struct{}{}
		defer func() { <-sema }()
		c.Next()
	}
}

// StreamingHeaderMiddleware adds event-streaming headers
func StreamingHeaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("Transfer-Encoding", "chunked")
		c.Next()
	}
}
