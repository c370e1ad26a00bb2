package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"patent-hand/providers/patentsview"
	"patent-hand/services"
	"patent-hand/storage"
)

func setupCompanyRoutes(router *gin.Engine, store *storage.Store, log *zap.Logger) {
	rg := router.Group("/companies")

	rg.GET("/", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		companies, err := store.Companies(c.Request.Context(), storage.CompanyFilter{Limit: limit})
		if err != nil {
			log.Error("Database query for companies failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, companies)
	})

	rg.GET("/:id/patents", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company id"})
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		patents, err := store.Patents(c.Request.Context(), storage.PatentFilter{CompanyID: uint(id), Limit: limit})
		if err != nil {
			log.Error("Database query for company patents failed", zap.Uint64("company_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, patents)
	})
}

func setupPatentRoutes(router *gin.Engine, store *storage.Store, log *zap.Logger) {
	rg := router.Group("/patents")

	// Eine Patentnummer kann mehreren Companies zugeordnet sein, daher immer eine Liste.
	rg.GET("/:number", func(c *gin.Context) {
		patents, err := store.Patents(c.Request.Context(), storage.PatentFilter{Number: c.Param("number")})
		if err != nil {
			log.Error("Database query for patent failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if len(patents) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "patent not found"})
			return
		}
		c.JSON(http.StatusOK, patents)
	})

	rg.GET("/:number/citations", func(c *gin.Context) {
		edges, err := store.CitationsOf(c.Request.Context(), c.Param("number"))
		if err != nil {
			log.Error("Database query for citations failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, edges)
	})
}

// runRequest wählt die Phasen eines manuell gestarteten Laufs.
type runRequest struct {
	Fetch      bool     `json:"fetch"`
	Citations  bool     `json:"citations"`
	Backfill   bool     `json:"backfill"`
	Companies  []string `json:"companies"`
	ResumeFrom uint     `json:"resume_from"`
	StartYear  int      `json:"start_year"`
	EndYear    int      `json:"end_year"`
}

func (r runRequest) options() services.RunOptions {
	opts := services.RunOptions{
		Fetch:     r.Fetch,
		Citations: r.Citations,
		Backfill:  r.Backfill,
		FetchOptions: services.FetchOptions{
			Companies:  r.Companies,
			ResumeFrom: r.ResumeFrom,
		},
	}
	if !r.Fetch && !r.Citations && !r.Backfill {
		opts.Fetch, opts.Citations, opts.Backfill = true, true, true
	}
	if r.StartYear != 0 || r.EndYear != 0 {
		opts.Years = &patentsview.YearRange{Begin: r.StartYear, End: r.EndYear}
	}
	return opts
}

func setupRunRoutes(runCtx context.Context, router *gin.Engine, store *storage.Store, pipeline *services.Pipeline, log *zap.Logger) {
	rg := router.Group("/runs")

	rg.GET("/", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		runs, err := store.Runs(c.Request.Context(), limit)
		if err != nil {
			log.Error("Database query for runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	rg.POST("/", func(c *gin.Context) {
		var req runRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
				return
			}
		}
		if req.StartYear != 0 && req.EndYear != 0 && req.StartYear > req.EndYear {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_year after end_year"})
			return
		}
		if pipeline.Running() {
			c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
			return
		}

		opts := req.options()
		go func() {
			runID, err := pipeline.Run(runCtx, opts)
			if errors.Is(err, services.ErrRunInProgress) {
				log.Warn("Manueller Lauf übersprungen, es läuft bereits einer")
				return
			}
			if err != nil {
				log.Error("Async pipeline run failed", zap.String("run_id", runID), zap.Error(err))
				return
			}
			log.Info("Async pipeline run completed", zap.String("run_id", runID))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Pipeline run triggered (fetch=%t, citations=%t, backfill=%t).", opts.Fetch, opts.Citations, opts.Backfill)})
	})
}
