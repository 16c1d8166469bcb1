package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// List get a list of attached devices
// List                godoc
// @Summary      Get a list of devices
// @Description  Get a list of all devices usbmuxd currently knows
// @Tags         general
// @Produce      json
// @Success      200  {object}  usbmux.DeviceList
// @Failure      500  {object}  GenericResponse
// @Router       /list [get]
func List(c *gin.Context) {
	devices, err := client(c).ListDevices(c.Request.Context())
	if err != nil {
		log.WithError(err).Warn("failed getting devicelist")
		c.JSON(http.StatusInternalServerError, GenericResponse{Error: err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, devices)
}

// Version returns the version of this binary
// @Router       /version [get]
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version})
}
