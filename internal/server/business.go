package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directory/internal/business/domain"
)

func (s *Server) CreateBusiness(c *gin.Context) {
	var req domain.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("request body must be a business profile object"))
		return
	}

	business, err := s.businessSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, business)
}

func (s *Server) UpdateBusiness(c *gin.Context) {
	var req domain.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("request body must be a business profile object"))
		return
	}

	business, err := s.businessSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, http.StatusOK, business)
}

func (s *Server) GetBusiness(c *gin.Context) {
	aggregate, err := s.businessSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, http.StatusOK, aggregate)
}
