package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllocateDeviceRequest reserves a whole HDD with at least MinSize bytes.
type AllocateDeviceRequest struct {
	MinSize uint64 `json:"min_size" binding:"required"`
}

func (s *Server) registerDeviceRoutes(r *gin.RouterGroup) {
	r.GET("/devices", s.listDevices)
	r.POST("/devices", s.allocateDevice)
	r.GET("/devices/:id", s.getDevice)
}

func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.storage.Devices(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) allocateDevice(c *gin.Context) {
	var req AllocateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	device, err := s.storage.DeviceAllocate(c.Request.Context(), req.MinSize)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (s *Server) getDevice(c *gin.Context) {
	device, err := s.storage.DeviceLookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}
