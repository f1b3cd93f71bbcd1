package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateVolumeRequest asks for a new quota limited volume.
type CreateVolumeRequest struct {
	Name string `json:"name" binding:"required"`
	Size uint64 `json:"size" binding:"required"`
}

// ResizeRequest carries a new size for a volume or disk.
type ResizeRequest struct {
	Size uint64 `json:"size" binding:"required"`
}

func (s *Server) registerVolumeRoutes(r *gin.RouterGroup) {
	r.GET("/volumes", s.listVolumes)
	r.POST("/volumes", s.createVolume)
	r.GET("/volumes/:name", s.getVolume)
	r.PUT("/volumes/:name", s.resizeVolume)
	r.DELETE("/volumes/:name", s.deleteVolume)
}

func (s *Server) listVolumes(c *gin.Context) {
	volumes, err := s.storage.Volumes(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, volumes)
}

func (s *Server) createVolume(c *gin.Context) {
	var req CreateVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	volume, err := s.storage.VolumeCreate(c.Request.Context(), req.Name, req.Size)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, volume)
}

func (s *Server) getVolume(c *gin.Context) {
	volume, err := s.storage.VolumeLookup(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, volume)
}

func (s *Server) resizeVolume(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	if err := s.storage.VolumeUpdate(c.Request.Context(), c.Param("name"), req.Size); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteVolume(c *gin.Context) {
	if err := s.storage.VolumeDelete(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
