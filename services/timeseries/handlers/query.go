// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the telemetry query service over HTTP.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianSensors/pkg/validation"
	"github.com/AleutianAI/AleutianSensors/services/timeseries"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/discovery"
	"github.com/gin-gonic/gin"
)

// QueryService is the part of *timeseries.Service the handlers use.
type QueryService interface {
	Query(ctx context.Context, sel datatypes.Selection) (timeseries.Result, error)
	Stats(ctx context.Context, sel datatypes.Selection) (timeseries.StatsResult, error)
	Sources(ctx context.Context, categories []string) []string
	Categories(ctx context.Context, sources []string) []string
	Choices(ctx context.Context, sel datatypes.Selection) discovery.Choices
}

// HandleQuery evaluates a selection and returns filtered events.
//
// The body is a Selection. Omitted fields keep their session defaults, so
// `{}` queries the trailing lookback with every filter disabled.
func HandleQuery(svc QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, ok := bindSelection(c)
		if !ok {
			return
		}
		res, err := svc.Query(c.Request.Context(), sel)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// HandleStats evaluates a selection and returns per-series statistics.
func HandleStats(svc QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, ok := bindSelection(c)
		if !ok {
			return
		}
		res, err := svc.Stats(c.Request.Context(), sel)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// HandleSources lists sources. Repeat ?category= to narrow the list.
func HandleSources(svc QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		categories := splitParams(c.QueryArray("category"))
		if err := validation.ValidateIdentifiers(categories); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": svc.Sources(c.Request.Context(), categories)})
	}
}

// HandleCategories lists categories. Repeat ?source= to narrow the list.
func HandleCategories(svc QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sources := splitParams(c.QueryArray("source"))
		if err := validation.ValidateIdentifiers(sources); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": svc.Categories(c.Request.Context(), sources)})
	}
}

// HandleChoices returns the valid lists for the selection's mode.
func HandleChoices(svc QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, ok := bindSelection(c)
		if !ok {
			return
		}
		switch sel.Mode {
		case datatypes.ModeAny, datatypes.ModeBySource, datatypes.ModeByCategory:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mode", "details": string(sel.Mode)})
			return
		}
		c.JSON(http.StatusOK, svc.Choices(c.Request.Context(), sel))
	}
}

// bindSelection decodes the body over a default selection and validates
// every identifier. It writes the 400 response itself.
func bindSelection(c *gin.Context) (datatypes.Selection, bool) {
	sel := datatypes.NewSelection()
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&sel); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return sel, false
		}
	}
	if err := validation.ValidateIdentifiers(sel.Sources); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source", "details": err.Error()})
		return sel, false
	}
	if err := validation.ValidateIdentifiers(sel.Categories); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category", "details": err.Error()})
		return sel, false
	}
	if !sel.Start.IsZero() && !sel.End.IsZero() && !sel.Start.Before(sel.End) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid range", "details": "start must be before end"})
		return sel, false
	}
	return sel, true
}

func respondQueryError(c *gin.Context, err error) {
	if errors.Is(err, timeseries.ErrInvalidSelection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid selection", "details": err.Error()})
		return
	}
	slog.Error("query failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed", "details": err.Error()})
}

// splitParams accepts both repeated and comma-separated query values.
func splitParams(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
