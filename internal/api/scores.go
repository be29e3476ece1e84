package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/funding-scout/internal/auth"
	"github.com/david/funding-scout/internal/models"
)

type batchScoreRequest struct {
	OpportunityIDs []uuid.UUID `json:"opportunity_ids"`
	Force          bool        `json:"force"`
}

type projectUpdate struct {
	Old models.Project `json:"old"`
	New models.Project `json:"new"`
}

type profileUpdate struct {
	Old models.Profile `json:"old"`
	New models.Profile `json:"new"`
}

type invalidationResponse struct {
	Invalidated bool `json:"invalidated"`
}

func (s *Server) cacheReady(c echo.Context) (uuid.UUID, bool, error) {
	if s.App.Cache == nil {
		return uuid.Nil, false, errorJSON(c, http.StatusServiceUnavailable, "score cache is not configured")
	}
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return uuid.Nil, false, errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	return userID, true, nil
}

func (s *Server) handleGetScore(c echo.Context) error {
	userID, ok, err := s.cacheReady(c)
	if !ok {
		return err
	}
	projectID, ok := uuidParam(c, "projectId")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid projectId")
	}
	oppID, ok := uuidParam(c, "opportunityId")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid opportunityId")
	}

	res, err := s.App.Cache.GetOrCalculate(c.Request().Context(), userID, projectID, oppID, c.QueryParam("force") == "true")
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleBatchScore(c echo.Context) error {
	userID, ok, err := s.cacheReady(c)
	if !ok {
		return err
	}
	projectID, ok := uuidParam(c, "projectId")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid projectId")
	}
	var req batchScoreRequest
	if err := c.Bind(&req); err != nil || len(req.OpportunityIDs) == 0 {
		return errorJSON(c, http.StatusBadRequest, "opportunity_ids is required")
	}

	res, err := s.App.Cache.BatchCalculateScores(c.Request().Context(), userID, projectID, req.OpportunityIDs, req.Force)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleProjectUpdated(c echo.Context) error {
	userID, ok, err := s.cacheReady(c)
	if !ok {
		return err
	}
	projectID, ok := uuidParam(c, "projectId")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid projectId")
	}
	var req projectUpdate
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	// The path and token decide which rows are touched.
	req.Old.ID, req.New.ID = projectID, projectID
	req.Old.UserID, req.New.UserID = userID, userID

	invalidated, err := s.App.Cache.InvalidateOnProjectUpdate(c.Request().Context(), req.Old, req.New)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, invalidationResponse{Invalidated: invalidated})
}

func (s *Server) handleProfileUpdated(c echo.Context) error {
	userID, ok, err := s.cacheReady(c)
	if !ok {
		return err
	}
	var req profileUpdate
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	req.Old.UserID, req.New.UserID = userID, userID

	invalidated, err := s.App.Cache.InvalidateOnProfileUpdate(c.Request().Context(), req.Old, req.New)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, invalidationResponse{Invalidated: invalidated})
}
