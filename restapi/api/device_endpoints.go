package api

import (
	"net/http"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/gin-gonic/gin"
)

// Info gets device info
// Info                godoc
// @Summary      Get the usbmuxd properties of a device by udid
// @Description  Returns connection type, location and product of the device
// @Tags         general_device_specific
// @Produce      json
// @Param        udid  path      string  true  "device udid"
// @Success      200  {object}  usbmux.DeviceAttachedInfo
// @Router       /device/{udid}/info [get]
func Info(c *gin.Context) {
	device := c.MustGet(DEVICE_KEY).(usbmux.DeviceAttachedInfo)
	c.IndentedJSON(http.StatusOK, device)
}
