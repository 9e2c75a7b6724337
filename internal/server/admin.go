package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	campaigndomain "github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/smallbiznis/campaignbridge/pkg/db/pagination"
	"github.com/smallbiznis/campaignbridge/pkg/money"
)

type progressRequest struct {
	CurrentQuantity *int64  `json:"current_quantity"`
	BackerCount     *int64  `json:"backer_count"`
	TotalRaised     *string `json:"total_raised"`
}

type progressResponse struct {
	ProductID       string `json:"product_id"`
	CurrentQuantity int64  `json:"current_quantity"`
	BackerCount     int64  `json:"backer_count"`
	TotalRaised     string `json:"total_raised"`
}

func (s *Server) ListTasks(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status := sideeffectdomain.Status(strings.TrimSpace(c.DefaultQuery("status", string(sideeffectdomain.StatusFailed))))

	tasks, pageInfo, err := s.tasks.List(c.Request.Context(), status, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks, "page_info": pageInfo})
}

func (s *Server) ReplayTask(c *gin.Context) {
	task, err := s.tasks.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": task})
}

func (s *Server) GetCampaignProgress(c *gin.Context) {
	productGID := shopify.ProductGID(c.Param("productId"))
	p, err := s.progress.Progress(c.Request.Context(), productGID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toProgressResponse(productGID, p)})
}

// SetCampaignProgress overwrites all three counters with absolute values.
func (s *Server) SetCampaignProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.CurrentQuantity == nil || req.BackerCount == nil || req.TotalRaised == nil {
		AbortWithError(c, newValidationError("progress", "required", "current_quantity, backer_count and total_raised are required"))
		return
	}
	raised, err := money.ParseCents(*req.TotalRaised)
	if err != nil {
		AbortWithError(c, newValidationError("total_raised", "invalid_amount", "total_raised must be a decimal amount"))
		return
	}

	productGID := shopify.ProductGID(c.Param("productId"))
	p, err := s.progress.SetProgress(c.Request.Context(), productGID, campaigndomain.Progress{
		CurrentQuantity:  *req.CurrentQuantity,
		BackerCount:      *req.BackerCount,
		TotalRaisedCents: raised,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toProgressResponse(productGID, p)})
}

func toProgressResponse(productGID string, p campaigndomain.Progress) progressResponse {
	return progressResponse{
		ProductID:       productGID,
		CurrentQuantity: p.CurrentQuantity,
		BackerCount:     p.BackerCount,
		TotalRaised:     money.FormatCents(p.TotalRaisedCents),
	}
}
