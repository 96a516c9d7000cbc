package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ListChains handles GET /companies/:companyID/chains
func (h *Handlers) ListChains(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))

	chains, err := h.chains.ListChains(c.Request.Context(), c.Param("companyID"), includeInactive)
	if err != nil {
		h.fail(c, "list_chains", err)
		return
	}
	if chains == nil {
		chains = []*entity.ApprovalChain{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: chains})
}

// GetChain handles GET /companies/:companyID/chains/:chainID
func (h *Handlers) GetChain(c *gin.Context) {
	chain, err := h.chains.GetChain(c.Request.Context(), c.Param("companyID"), c.Param("chainID"))
	if err != nil {
		h.fail(c, "get_chain", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: chain})
}

// CreateChain handles POST /companies/:companyID/chains
func (h *Handlers) CreateChain(c *gin.Context) {
	var in service.ChainInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	chain, err := h.chains.CreateChain(c.Request.Context(), c.Param("companyID"), in)
	if err != nil {
		h.fail(c, "create_chain", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: chain})
}

// UpdateChain handles PUT /companies/:companyID/chains/:chainID
func (h *Handlers) UpdateChain(c *gin.Context) {
	var in service.ChainInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	chain, err := h.chains.UpdateChain(c.Request.Context(), c.Param("companyID"), c.Param("chainID"), in)
	if err != nil {
		h.fail(c, "update_chain", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: chain})
}

// DeactivateChain handles POST /companies/:companyID/chains/:chainID/deactivate
func (h *Handlers) DeactivateChain(c *gin.Context) {
	chain, err := h.chains.DeactivateChain(c.Request.Context(), c.Param("companyID"), c.Param("chainID"))
	if err != nil {
		h.fail(c, "deactivate_chain", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: chain})
}

// DeleteChain handles DELETE /companies/:companyID/chains/:chainID
func (h *Handlers) DeleteChain(c *gin.Context) {
	if err := h.chains.DeleteChain(c.Request.Context(), c.Param("companyID"), c.Param("chainID")); err != nil {
		h.fail(c, "delete_chain", err)
		return
	}
	c.Status(http.StatusNoContent)
}
