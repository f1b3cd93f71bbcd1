package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nodeos/storaged/pkg/flist"
)

// MountRequest mounts an flist under a name.
type MountRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`

	// Mode is "ro" (default) or "rw".
	Mode string `json:"mode"`

	// Limit is the write layer quota in bytes, rw mounts only.
	Limit uint64 `json:"limit"`

	// Storage overrides the default content store.
	Storage string `json:"storage"`
}

// MountResponse describes a named mount.
type MountResponse struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Hash string `json:"hash,omitempty"`
}

func (s *Server) registerFlistRoutes(r *gin.RouterGroup) {
	r.GET("/flist", s.listMounts)
	r.POST("/flist", s.mountFlist)
	r.GET("/flist/:name", s.getMount)
	r.PUT("/flist/:name", s.updateMount)
	r.DELETE("/flist/:name", s.unmountFlist)
}

func parseMode(mode string) (flist.MountMode, error) {
	switch mode {
	case "", "ro":
		return flist.ReadOnly, nil
	case "rw":
		return flist.ReadWrite, nil
	default:
		return 0, fmt.Errorf("invalid mount mode '%s'", mode)
	}
}

func (s *Server) listMounts(c *gin.Context) {
	names, err := s.flist.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) mountFlist(c *gin.Context) {
	var req MountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	mode, err := parseMode(req.Mode)
	if err != nil {
		abortBadRequest(c, err)
		return
	}

	path, err := s.flist.Mount(c.Request.Context(), req.Name, req.URL, flist.MountOptions{
		Mode:    mode,
		Limit:   req.Limit,
		Storage: req.Storage,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MountResponse{Name: req.Name, Path: path})
}

func (s *Server) getMount(c *gin.Context) {
	name := c.Param("name")

	mounted, err := s.flist.Exists(name)
	if err != nil {
		abortBadRequest(c, err)
		return
	}
	if !mounted {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("'%s' is not mounted", name)})
		return
	}

	hash, err := s.flist.HashOfMount(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MountResponse{Name: name, Hash: hash})
}

func (s *Server) updateMount(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	if err := s.flist.Update(c.Request.Context(), c.Param("name"), req.Size); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) unmountFlist(c *gin.Context) {
	if err := s.flist.Unmount(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
