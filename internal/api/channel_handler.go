package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/services"
)

// ChannelHandler serves data connections and the record archive
type ChannelHandler struct {
	channels services.ChannelService
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(channels services.ChannelService) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

// ListConnections returns every connection with secrets masked
func (h *ChannelHandler) ListConnections(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	list, err := h.channels.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"connections": list, "total": len(list)})
}

// GetConnection returns one connection
func (h *ChannelHandler) GetConnection(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	conn, err := h.channels.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"connection": conn})
}

// CreateConnection adds a connection
func (h *ChannelHandler) CreateConnection(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	var conn models.DataConnection
	if !bindJSON(c, &conn) {
		return
	}
	conn.ID = ""
	saved, err := h.channels.Save(ctx, conn)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"message": "Connection created successfully", "connection": saved})
}

// UpdateConnection replaces a connection's settings
func (h *ChannelHandler) UpdateConnection(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	id := c.Param("id")
	if _, err := h.channels.Get(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	var conn models.DataConnection
	if !bindJSON(c, &conn) {
		return
	}
	conn.ID = id
	saved, err := h.channels.Save(ctx, conn)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Connection updated successfully", "connection": saved})
}

// DeleteConnection removes a connection and the records it produced
func (h *ChannelHandler) DeleteConnection(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	if err := h.channels.Delete(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestConnection probes a connection
func (h *ChannelHandler) TestConnection(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	res, err := h.channels.Test(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"result": res})
}

// SyncConnection runs a manual sync
func (h *ChannelHandler) SyncConnection(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	res, err := h.channels.Sync(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"result": res})
}

// GetChannelHealth returns the probe history of every connection
func (h *ChannelHandler) GetChannelHealth(c *gin.Context) {
	respondOK(c, gin.H{"health": h.channels.Health()})
}

// ListRecords returns archived records matching the query filter
func (h *ChannelHandler) ListRecords(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	var filter models.RecordFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, errors.InvalidInput("invalid record filter", err))
		return
	}
	list, err := h.channels.Records(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"records": list, "total": len(list)})
}

// ImportRecords archives a CSV of records for a connection, sent either as
// the multipart field csv_file or as a text/csv body
func (h *ChannelHandler) ImportRecords(c *gin.Context) {
	ctx, cancel := requestContext(c, importTimeout)
	defer cancel()

	var body io.Reader
	filename := ""
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, header, err := c.Request.FormFile("csv_file")
		if err != nil {
			respondError(c, errors.InvalidInput("No CSV file provided", err))
			return
		}
		defer file.Close()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
			respondError(c, errors.InvalidInput("File must be a CSV", nil))
			return
		}
		body, filename = file, header.Filename
	} else {
		body = c.Request.Body
	}

	result, err := h.channels.ImportRecords(ctx, c.Param("id"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{
		"message":  "Records imported successfully",
		"result":   result,
		"filename": filename,
	})
}
