package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Listen send server side events when devices are plugged in or removed
// Listen                godoc
// @Summary      Uses SSE to connect to the LISTEN command
// @Description Uses SSE to connect to the LISTEN command
// @Tags         general
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /listen [get]
func Listen(c *gin.Context) {
	ctx := c.Request.Context()
	listener, err := client(c).Listen(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, GenericResponse{Error: err.Error()})
		return
	}
	defer listener.Close()
	log.Info("sse client connected")

	c.Stream(func(w io.Writer) bool {
		event, err := listener.WaitEvent(ctx)
		if err != nil {
			log.WithError(err).Debug("sse listen stream ended")
			return false
		}
		c.SSEvent(event.Type.String(), MustMarshal(event))
		return true
	})
}

// ListenWebsocket streams the same events as Listen as JSON text messages over a websocket
// @Router       /ws [get]
func ListenWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	logger := log.WithField("conn", uuid.New().String())

	ctx := c.Request.Context()
	listener, err := client(c).Listen(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed starting usbmux listener")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer listener.Close()
	logger.Info("websocket client connected")

	// the client never sends anything, reading only notices when it goes away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				listener.Close()
				return
			}
		}
	}()

	for {
		event, err := listener.WaitEvent(ctx)
		if err != nil {
			if !errors.Is(err, usbmux.ErrListenerClosed) {
				logger.WithError(err).Debug("usbmux listener failed")
			}
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		if err := conn.WriteJSON(event); err != nil {
			logger.WithError(err).Debug("failed writing to websocket client")
			return
		}
	}
}
