package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/domainerr"
	tabledomain "github.com/smallbiznis/comanda/internal/table/domain"
)

type reservationRequest struct {
	Reserved *bool `json:"reserved"`
}

func (s *Server) ListTables(c *gin.Context) {
	tables, err := s.tableSvc.List(c.Request.Context(), tabledomain.ListRequest{
		State:    tabledomain.State(strings.ToUpper(strings.TrimSpace(c.Query("state")))),
		Location: strings.TrimSpace(c.Query("location")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tables})
}

func (s *Server) GetTable(c *gin.Context) {
	number, err := tableNumberParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	table, err := s.tableSvc.Get(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": table})
}

func (s *Server) SetTableReservation(c *gin.Context) {
	a, _ := actorFromContext(c)
	number, err := tableNumberParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Reserved == nil {
		AbortWithError(c, domainerr.Invalid("reserved", "required", "reserved is required"))
		return
	}

	table, err := s.tableSvc.SetReservation(c.Request.Context(), a, number, *req.Reserved)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": table})
}

func tableNumberParam(c *gin.Context) (int, error) {
	number, err := strconv.Atoi(strings.TrimSpace(c.Param("number")))
	if err != nil || number <= 0 {
		return 0, domainerr.Invalid("number", "invalid_table", "table number must be positive")
	}
	return number, nil
}
