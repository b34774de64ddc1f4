package api

import (
	"net/http"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart retrieved", cart)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.carts.AddItem(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Item added to cart", cart)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req service.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.carts.UpdateItem(c.Request.Context(), actorFrom(c), c.Param("itemId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart item updated", cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	cart, err := h.carts.RemoveItem(c.Request.Context(), actorFrom(c), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Item removed from cart", cart)
}

func (h *Handler) clearCart(c *gin.Context) {
	cart, err := h.carts.ClearCart(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart cleared", cart)
}
