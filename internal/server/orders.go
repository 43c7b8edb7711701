package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/authorization"
	"github.com/smallbiznis/comanda/internal/domainerr"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/settlement"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
)

type changeStateRequest struct {
	State string `json:"state"`
	Note  string `json:"note"`
}

type settleRequest struct {
	Method   string           `json:"method"`
	Tendered *decimal.Decimal `json:"tendered"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type listOrdersQuery struct {
	pagination.Pagination
	State        []string `form:"state"`
	Table        string   `form:"table"`
	WaiterID     string   `form:"waiter_id"`
	From         string   `form:"from"`
	To           string   `form:"to"`
	UpdatedSince string   `form:"updated_since"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	a, _ := actorFromContext(c)

	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.orderSvc.Create(c.Request.Context(), a, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result.Order, "warnings": result.Warnings})
}

func (s *Server) ListOrders(c *gin.Context) {
	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var errs domainerr.ValidationErrors
	var states []orderdomain.State
	for _, raw := range splitList(query.State) {
		state, ok := orderdomain.ParseState(raw)
		if !ok {
			errs = append(errs, domainerr.Invalid("state", orderdomain.CodeInvalidState, "unknown state "+raw))
			continue
		}
		states = append(states, state)
	}
	table, err := parseOptionalInt("table", query.Table)
	errs = appendValidation(errs, err)
	from, err := parseOptionalTime("from", query.From, false)
	errs = appendValidation(errs, err)
	to, err := parseOptionalTime("to", query.To, true)
	errs = appendValidation(errs, err)
	updatedSince, err := parseOptionalTime("updated_since", query.UpdatedSince, false)
	errs = appendValidation(errs, err)
	if err := errs.Err(); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListOrdersRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		States:       states,
		TableNumber:  table,
		WaiterID:     strings.TrimSpace(query.WaiterID),
		From:         from,
		To:           to,
		UpdatedSince: updatedSince,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":               resp.Orders,
		"page_info":          resp.PageInfo,
		"poll_after_seconds": resp.PollAfterSeconds,
	})
}

func (s *Server) GetOrder(c *gin.Context) {
	id, err := parseSnowflakeParam("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) ChangeOrderState(c *gin.Context) {
	a, _ := actorFromContext(c)
	id, err := parseSnowflakeParam("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req changeStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// Cancelling through a transition still needs the cancel grant.
	if state, ok := orderdomain.ParseState(req.State); ok && state == orderdomain.StateCancelled {
		if err := s.authzSvc.Authorize(c.Request.Context(), a, authorization.ObjectOrder, authorization.ActionOrderCancel); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	order, err := s.orderSvc.ChangeState(c.Request.Context(), a, id, orderdomain.ChangeStateRequest{
		State: orderdomain.State(strings.TrimSpace(req.State)),
		Note:  strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) EditOrderLines(c *gin.Context) {
	a, _ := actorFromContext(c)
	id, err := parseSnowflakeParam("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.EditLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.EditLines(c.Request.Context(), a, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) SettleOrder(c *gin.Context) {
	a, _ := actorFromContext(c)
	id, err := parseSnowflakeParam("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Tendered == nil {
		AbortWithError(c, domainerr.Invalid("tendered", orderdomain.CodeRequired, "tendered amount is required"))
		return
	}

	receipt, err := s.orderSvc.Settle(c.Request.Context(), a, id, orderdomain.SettleRequest{
		Method:   settlement.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		Tendered: *req.Tendered,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) CancelOrder(c *gin.Context) {
	a, _ := actorFromContext(c)
	id, err := parseSnowflakeParam("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.Cancel(c.Request.Context(), a, id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func appendValidation(errs domainerr.ValidationErrors, err error) domainerr.ValidationErrors {
	if err == nil {
		return errs
	}
	if v, ok := err.(domainerr.ValidationError); ok {
		return append(errs, v)
	}
	return append(errs, domainerr.Invalid("request", "invalid_request", err.Error()))
}
