package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
)

// LoyaltyHandler serves the account query and the spend command
type LoyaltyHandler struct {
	BaseHandler
	accountService *loyaltyapp.AccountService
	spendService   *loyaltyapp.SpendPointsService
}

// NewLoyaltyHandler creates a new LoyaltyHandler
func NewLoyaltyHandler(accountService *loyaltyapp.AccountService, spendService *loyaltyapp.SpendPointsService) *LoyaltyHandler {
	return &LoyaltyHandler{
		accountService: accountService,
		spendService:   spendService,
	}
}

// SpendPointsRequest is the body of the spend endpoint.
// customerId is optional; when present it must match the path.
// @Description Request body for spending loyalty points
type SpendPointsRequest struct {
	CustomerID  string  `json:"customerId" example:"james"`
	OrderNumber string  `json:"orderNumber" binding:"required,max=128,order_ref" example:"ORD999"`
	Spend       float64 `json:"spend" binding:"gt=0" example:"5"`
}

// GetAccount godoc
// @ID           getLoyaltyAccount
// @Summary      Get a loyalty account
// @Description  Returns the balance and full transaction history of a customer
// @Tags         loyalty
// @Produce      json
// @Param        customer_id  path      string  true  "Customer ID"
// @Success      200          {object}  loyaltyapp.AccountResponse
// @Failure      400          {object}  ErrorResponse
// @Failure      404          {object}  ErrorResponse
// @Failure      500          {object}  ErrorResponse
// @Router       /loyalty/{customer_id} [get]
func (h *LoyaltyHandler) GetAccount(c *gin.Context) {
	customerID := c.Param(middleware.CustomerIDParam)

	account, err := h.accountService.GetAccount(c.Request.Context(), customerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// SpendPoints godoc
// @ID           spendLoyaltyPoints
// @Summary      Spend loyalty points
// @Description  Debits points against an order and returns the updated account
// @Tags         loyalty
// @Accept       json
// @Produce      json
// @Param        customer_id  path      string              true  "Customer ID"
// @Param        request      body      SpendPointsRequest  true  "Spend request"
// @Success      200          {object}  loyaltyapp.AccountResponse
// @Failure      400          {object}  ErrorResponse
// @Failure      404          {object}  ErrorResponse
// @Failure      422          {object}  ErrorResponse
// @Failure      500          {object}  ErrorResponse
// @Router       /loyalty/{customer_id}/spend [post]
func (h *LoyaltyHandler) SpendPoints(c *gin.Context) {
	customerID := c.Param(middleware.CustomerIDParam)

	var req SpendPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if req.CustomerID != "" && strings.TrimSpace(req.CustomerID) != customerID {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "customerId does not match the account in the path")
		return
	}

	account, err := h.spendService.Spend(c.Request.Context(), loyaltyapp.SpendPointsCommand{
		CustomerID:  customerID,
		OrderNumber: req.OrderNumber,
		Spend:       req.Spend,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}
