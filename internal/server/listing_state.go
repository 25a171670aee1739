package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directory/internal/listingstate"
)

// ListingStateService is the subset of listingstate.Service the routes use.
type ListingStateService interface {
	Approve(ctx context.Context, id string) (listingstate.State, error)
	Deactivate(ctx context.Context, id string) (listingstate.State, error)
	Reactivate(ctx context.Context, id string) (listingstate.State, error)
}

type listingStateResponse struct {
	ID    string             `json:"id"`
	State listingstate.State `json:"state"`
}

func (s *Server) ApproveBusiness(c *gin.Context) {
	s.changeState(c, s.stateSvc.Approve)
}

func (s *Server) DeactivateBusiness(c *gin.Context) {
	s.changeState(c, s.stateSvc.Deactivate)
}

func (s *Server) ReactivateBusiness(c *gin.Context) {
	s.changeState(c, s.stateSvc.Reactivate)
}

func (s *Server) changeState(c *gin.Context, move func(context.Context, string) (listingstate.State, error)) {
	id := strings.TrimSpace(c.Param("id"))
	state, err := move(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, http.StatusOK, listingStateResponse{ID: id, State: state})
}
