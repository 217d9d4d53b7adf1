// Package server exposes the job pipeline over HTTP: submission, status,
// cancellation, artifact download and cost export.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"transcript-pipeline/internal/artifact"
	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/profile"
	"transcript-pipeline/internal/provider"
	"transcript-pipeline/internal/report"
	"transcript-pipeline/internal/store"
	"transcript-pipeline/internal/types"
)

type Server struct {
	store     *store.Store
	artifacts artifact.Store
	profiles  *profile.Store
	resolver  *provider.Resolver
	uploadDir string
	log       *logrus.Entry
}

func New(st *store.Store, artifacts artifact.Store, profiles *profile.Store, resolver *provider.Resolver, uploadDir string) *Server {
	return &Server{
		store:     st,
		artifacts: artifacts,
		profiles:  profiles,
		resolver:  resolver,
		uploadDir: uploadDir,
		log:       logger.New().WithField("component", "server"),
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.health)
	r.GET("/profiles", s.listProfiles)
	r.POST("/profiles/reload", s.reloadProfiles)

	r.POST("/jobs", s.createJob)
	r.GET("/jobs", s.listJobs)
	r.GET("/jobs/:id", s.getJob)
	r.POST("/jobs/:id/cancel", s.cancelJob)
	r.GET("/jobs/:id/artifacts/:stage", s.getArtifact)

	r.GET("/costs/export", s.exportCosts)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.New().WithRequest(c.Request).WithFields(logrus.Fields{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": s.resolver.Configured(),
		"profiles":  s.profiles.Names(),
	})
}

func (s *Server) listProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": s.profiles.Names()})
}

func (s *Server) reloadProfiles(c *gin.Context) {
	if err := s.profiles.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": s.profiles.Names()})
}

func (s *Server) createJob(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}

	profileID := c.PostForm("profile")
	if profileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile required"})
		return
	}
	prof := s.profiles.Get(profileID)
	if prof == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown profile: %s", profileID)})
		return
	}

	// The profile's configured priority is the default; an explicit form
	// value overrides it.
	priority := prof.Priority
	if priority == 0 {
		priority = types.DefaultPriority
	}
	if raw := c.PostForm("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 || p > 10 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be an integer between 1 and 10"})
			return
		}
		priority = p
	}

	jobID := uuid.New().String()
	dest := filepath.Join(s.uploadDir, jobID+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	job := &types.Job{
		ID:        jobID,
		ProfileID: profileID,
		Filename:  dest,
		Status:    types.JobStatusQueued,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateJob(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"profile":  profileID,
		"priority": priority,
	}).Info("job submitted")
	c.JSON(http.StatusCreated, job)
}

func (s *Server) listJobs(c *gin.Context) {
	filter := store.JobFilter{
		Status:    types.JobStatus(c.Query("status")),
		ProfileID: c.Query("profile"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	jobs, err := s.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stages, err := s.store.ListStageResults(c.Request.Context(), job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "stages": stages})
}

func (s *Server) cancelJob(c *gin.Context) {
	job, err := s.store.RequestCancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) getArtifact(c *gin.Context) {
	ctx := c.Request.Context()
	sr, err := s.store.GetStageResult(ctx, c.Param("id"), c.Param("stage"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sr == nil || sr.OutputRef == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no output recorded for stage"})
		return
	}

	data, err := s.artifacts.Get(ctx, sr.OutputRef)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not available"})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (s *Server) exportCosts(c *gin.Context) {
	var buf bytes.Buffer
	if err := report.WriteCostReport(c.Request.Context(), s.store, &buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="costs.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
