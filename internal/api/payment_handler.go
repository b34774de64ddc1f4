package api

import (
	"net/http"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req service.CreateIntentRequest
	if !bindJSON(c, &req) {
		return
	}
	intent, err := h.payments.CreatePaymentIntent(c.Request.Context(), actorFrom(c), req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Payment intent created"
	if !intent.RequiresPayment {
		message = "Cash on delivery, no online payment required"
	}
	respond(c, http.StatusOK, message, intent)
}

func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.payments.GetPayment(c.Request.Context(), actorFrom(c), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment retrieved", payment)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.payments.VerifyPayment(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment verified", payment)
}

func (h *Handler) recordPaymentFailure(c *gin.Context) {
	var req service.RecordFailureRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.payments.RecordFailure(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment failure recorded", payment)
}
