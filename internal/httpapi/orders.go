package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
)

func (a *API) handleCreateSalesOrder(c *gin.Context) {
	var req domain.SalesOrderCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.CreateSalesOrder(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (a *API) handleListSalesOrders(c *gin.Context) {
	limit, offset := paging(c)
	orders, err := a.service.ListSalesOrders(c.Request.Context(), store.SalesFilter{
		BranchID: c.Query("branch_id"),
		Status:   c.Query("status"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (a *API) handleGetSalesOrder(c *gin.Context) {
	order, err := a.service.GetSalesOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleSalesOrderStatus(c *gin.Context) {
	var req domain.OrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.UpdateSalesOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleSalesPayment(c *gin.Context) {
	var req domain.PaymentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.UpdateSalesPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleCancelSalesOrder(c *gin.Context) {
	order, err := a.service.CancelSalesOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleCreateServiceOrder(c *gin.Context) {
	var req domain.ServiceOrderCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.CreateServiceOrder(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (a *API) handleListServiceOrders(c *gin.Context) {
	limit, offset := paging(c)
	orders, err := a.service.ListServiceOrders(c.Request.Context(), store.ServiceFilter{
		BranchID:   c.Query("branch_id"),
		Status:     c.Query("status"),
		AssignedTo: c.Query("assigned_to"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (a *API) handleGetServiceOrder(c *gin.Context) {
	order, err := a.service.GetServiceOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleServiceDetails(c *gin.Context) {
	var req domain.ServiceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.UpdateServiceDetails(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleServiceOrderStatus(c *gin.Context) {
	var req domain.OrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.UpdateServiceOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleServiceParts(c *gin.Context) {
	var req domain.ServicePartsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.UpdateServiceParts(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleServicePayment(c *gin.Context) {
	var req domain.PaymentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.UpdateServicePayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleServiceAssign(c *gin.Context) {
	var req domain.ServiceAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	order, err := a.service.AssignServiceOrder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (a *API) handleCancelServiceOrder(c *gin.Context) {
	order, err := a.service.CancelServiceOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
