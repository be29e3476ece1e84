package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/app"
	"github.com/david/funding-scout/internal/auth"
	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/discovery"
	"github.com/david/funding-scout/internal/scoring"
)

type Server struct {
	App  *app.App
	Echo *echo.Echo
}

func NewServer(a *app.App, secret []byte, allowedOrigins []string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:4200"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{App: a, Echo: e}
	s.routes(secret)
	return s
}

func (s *Server) routes(secret []byte) {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.Use(auth.Middleware(secret))
	api.POST("/discover", s.handleDiscover)
	api.POST("/score", s.handleScore)
	api.GET("/scores/:projectId/:opportunityId", s.handleGetScore)
	api.POST("/scores/:projectId/batch", s.handleBatchScore)
	api.POST("/projects/:projectId/updated", s.handleProjectUpdated)
	api.POST("/profile/updated", s.handleProfileUpdated)
	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// statusFor maps pipeline errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, discovery.ErrEmptyQuery), errors.Is(err, scoring.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, discovery.ErrNoSearchProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func uuidParam(c echo.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	return id, err == nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleDiscover(c echo.Context) error {
	if s.App.Discovery == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "discovery is not configured")
	}
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}

	var req discovery.DiscoveryRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	req.UserID = userID

	ctx := c.Request().Context()
	if len(req.UserProjects) == 0 && s.App.Backend.Repository != nil {
		projects, err := s.App.Backend.Repository.ListProjects(ctx, userID)
		if err != nil {
			zap.S().Named("api").Warnw("failed to load user projects", "user_id", userID, "error", err)
		}
		req.UserProjects = projects
	}

	resp, err := s.App.Discovery.Discover(ctx, req)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScore(c echo.Context) error {
	var req scoring.ScoreRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	resp, err := s.App.Scoring.Handle(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	params := db.ListParams{
		Source:  c.QueryParam("source"),
		Urgency: c.QueryParam("urgency"),
	}
	if v, err := strconv.Atoi(c.QueryParam("min_fit")); err == nil && v > 0 {
		params.MinFit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		params.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		params.Offset = v
	}
	if v := c.QueryParam("non_monetary"); v != "" {
		val := v == "true"
		params.NonMonetary = &val
	}

	// Semantic ordering when a query and an embedder are available.
	if q := c.QueryParam("q"); q != "" && s.App.Embedder != nil {
		aiCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		vec, err := s.App.Embedder.GenerateEmbedding(aiCtx, q)
		if err != nil {
			c.Logger().Errorf("Failed to generate query embedding: %v", err)
		} else {
			params.QueryEmbedding = vec
		}
	}

	result, err := s.App.Backend.Opportunities.List(c.Request().Context(), params)
	if err != nil {
		c.Logger().Errorf("Failed to list opportunities: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "Internal Server Error")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	opp, err := s.App.Backend.Opportunities.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "Not found")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, opp)
}
