package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateDiskRequest asks for a new virtual disk image.
type CreateDiskRequest struct {
	Name string `json:"name" binding:"required"`
	Size uint64 `json:"size" binding:"required"`
}

func (s *Server) registerDiskRoutes(r *gin.RouterGroup) {
	r.GET("/disks", s.listDisks)
	r.POST("/disks", s.createDisk)
	r.GET("/disks/:name", s.getDisk)
	r.PUT("/disks/:name", s.expandDisk)
	r.DELETE("/disks/:name", s.deleteDisk)
}

func (s *Server) listDisks(c *gin.Context) {
	disks, err := s.storage.Disks(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, disks)
}

func (s *Server) createDisk(c *gin.Context) {
	var req CreateDiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	disk, err := s.storage.DiskCreate(c.Request.Context(), req.Name, req.Size)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, disk)
}

func (s *Server) getDisk(c *gin.Context) {
	disk, err := s.storage.DiskLookup(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, disk)
}

func (s *Server) expandDisk(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	if err := s.storage.DiskExpand(c.Request.Context(), c.Param("name"), req.Size); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDisk(c *gin.Context) {
	if err := s.storage.DiskDelete(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
