package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/order"
)

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (s *server) listOrders(c *gin.Context) {
	items, err := s.orders.ListOrders(c.Request.Context(), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	list(c, items, "order.listed")
}

func (s *server) createOrder(c *gin.Context) {
	var req order.CreateRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	o, err := s.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusCreated, o, "order.created")
}

func (s *server) getOrder(c *gin.Context) {
	o, err := s.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, o, "order.read")
}

func (s *server) cancelOrder(c *gin.Context) {
	o, err := s.orders.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, o, "order.cancelled")
}

func (s *server) confirmOrder(c *gin.Context) {
	o, err := s.orders.ConfirmOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, o, "order.confirmed")
}

func (s *server) listOrderItems(c *gin.Context) {
	items, err := s.orders.ListItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	list(c, items, "order.item.listed")
}

func (s *server) addOrderItem(c *gin.Context) {
	var req order.Line
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	it, err := s.orders.AddItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusCreated, it, "order.item.added")
}

func (s *server) getOrderItem(c *gin.Context) {
	it, err := s.orders.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, it, "order.item.read")
}

func (s *server) updateOrderItem(c *gin.Context) {
	var req quantityRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if req.Quantity == nil {
		s.fail(c, apperr.Validation("quantity is required"))
		return
	}
	it, err := s.orders.UpdateItemQuantity(c.Request.Context(), c.Param("id"), *req.Quantity)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, it, "order.item.updated")
}

func (s *server) removeOrderItem(c *gin.Context) {
	it, err := s.orders.RemoveItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, it, "order.item.removed")
}
