package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	closingdomain "github.com/smallbiznis/comanda/internal/closing/domain"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
)

type listClosingsQuery struct {
	pagination.Pagination
	Status     string `form:"status"`
	ShiftLabel string `form:"shift_label"`
	From       string `form:"from"`
	To         string `form:"to"`
}

type reviewClosingRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) CloseShift(c *gin.Context) {
	a, _ := actorFromContext(c)

	var req closingdomain.CloseShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	closing, err := s.closingSvc.Close(c.Request.Context(), a, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": closing})
}

func (s *Server) ListClosings(c *gin.Context) {
	var query listClosingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var errs domainerr.ValidationErrors
	from, err := parseOptionalTime("from", query.From, false)
	errs = appendValidation(errs, err)
	to, err := parseOptionalTime("to", query.To, true)
	errs = appendValidation(errs, err)
	if err := errs.Err(); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.closingSvc.List(c.Request.Context(), closingdomain.ListClosingsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status:     closingdomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
		ShiftLabel: strings.TrimSpace(query.ShiftLabel),
		From:       from,
		To:         to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Closings, "page_info": resp.PageInfo})
}

func (s *Server) GetClosing(c *gin.Context) {
	id, err := parseSnowflakeParam("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	closing, err := s.closingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": closing})
}

func (s *Server) ReviewClosing(c *gin.Context) {
	a, _ := actorFromContext(c)
	id, err := parseSnowflakeParam("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reviewClosingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	closing, err := s.closingSvc.Review(c.Request.Context(), a, id, closingdomain.ReviewRequest{
		Status: closingdomain.Status(strings.TrimSpace(req.Status)),
		Notes:  strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": closing})
}
