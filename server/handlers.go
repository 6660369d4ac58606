package server

import (
	"errors"
	"net/http"

	"github.com/HavvokLab/solax-cloud/integration"
	"github.com/gin-gonic/gin"
	"go.openly.dev/pointy"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
)

type EntryRequest struct {
	TokenID      string `json:"token_id" zog:"token_id"`
	SerialNumber string `json:"serial_number" zog:"serial_number"`
	APIBaseURL   string `json:"api_base_url" zog:"api_base_url"`
}

// Missing fields are reported by the config flow as form errors.
var entryRequestSchema = z.Struct(z.Shape{
	"TokenID":      z.String().Trim().Max(256),
	"SerialNumber": z.String().Trim().Max(64),
	"APIBaseURL":   z.String().Trim().Max(512),
})

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (rs *RestfulServer) ListEntries(c *gin.Context) {
	c.JSON(http.StatusOK, rs.Manager.Entries())
}

func (rs *RestfulServer) CreateEntry(c *gin.Context) {
	var req EntryRequest
	if err := entryRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	input := integration.UserInput{
		TokenID:      req.TokenID,
		SerialNumber: req.SerialNumber,
	}
	if req.APIBaseURL != "" {
		input.APIBaseURL = pointy.String(req.APIBaseURL)
	}

	result, err := rs.Manager.AddEntry(c.Request.Context(), input)
	if err != nil {
		rs.logger.Error().Err(err).Msg("RestfulServer::CreateEntry() - failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch result.Type {
	case integration.FlowResultForm:
		c.JSON(http.StatusBadRequest, result)
	case integration.FlowResultAbort:
		c.JSON(http.StatusConflict, result)
	default:
		view, err := rs.Manager.Entry(result.Entry.ID)
		if err != nil {
			c.JSON(http.StatusCreated, result)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

func (rs *RestfulServer) GetEntry(c *gin.Context) {
	view, err := rs.Manager.Entry(c.Param("entry_id"))
	if err != nil {
		rs.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (rs *RestfulServer) GetSensors(c *gin.Context) {
	states, err := rs.Manager.Sensors(c.Param("entry_id"))
	if err != nil {
		rs.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, states)
}

func (rs *RestfulServer) RefreshEntry(c *gin.Context) {
	snapshot, err := rs.Manager.Refresh(c.Request.Context(), c.Param("entry_id"))
	if errors.Is(err, integration.ErrEntryNotFound) || errors.Is(err, integration.ErrEntryNotReady) {
		rs.abortWithError(c, err)
		return
	}

	// a failed poll still yields the stale snapshot
	if err != nil {
		c.JSON(http.StatusBadGateway, snapshot)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (rs *RestfulServer) DeleteEntry(c *gin.Context) {
	if err := rs.Manager.RemoveEntry(c.Param("entry_id")); err != nil {
		rs.abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (rs *RestfulServer) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, integration.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, integration.ErrEntryNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		rs.logger.Error().Err(err).Str("path", c.FullPath()).Msg("RestfulServer::abortWithError()")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
