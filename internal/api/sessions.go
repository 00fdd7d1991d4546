// internal/api/sessions.go
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	"github.com/sbgadvisor/WellNavigator2/internal/models"
	streamcompletion "github.com/sbgadvisor/WellNavigator2/internal/pipeline/generation/stream-completion"
	trackbudget "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/track-budget"

	"github.com/labstack/echo/v4"
)

// TurnRequest is the body of POST /v1/sessions/:id/turns and of every
// client frame on the stream socket.
type TurnRequest struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

type SessionResponse struct {
	Session models.SessionInfo `json:"session"`
	Budget  trackbudget.Status `json:"budget"`
	Turns   []models.Turn      `json:"turns,omitempty"`
}

// ListPrompts handles GET /v1/prompts.
func (s *Server) ListPrompts(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"prompts": s.pipeline.SuggestedPrompts(),
	})
}

// ListModels handles GET /v1/models. Every listed model has a price.
func (s *Server) ListModels(c echo.Context) error {
	names := streamcompletion.AvailableModels()
	pricing := make(map[string]streamcompletion.Pricing, len(names))
	for _, m := range names {
		pricing[m] = streamcompletion.PriceFor(m)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"default": s.pipeline.DefaultSettings().Model,
		"models":  names,
		"pricing": pricing,
	})
}

// CreateSession handles POST /v1/sessions. Fields missing from the body
// keep their default values.
func (s *Server) CreateSession(c echo.Context) error {
	settings := s.pipeline.DefaultSettings()
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&settings); err != nil {
			return s.invalid(c, "", "invalid request body")
		}
	}

	sess, err := s.registry.Create(&settings)
	if err != nil {
		return s.sessionError(c, "", err)
	}
	return c.JSON(http.StatusCreated, SessionResponse{
		Session: sess.Info(),
		Budget:  sess.Budget(),
	})
}

// GetSession handles GET /v1/sessions/:id.
func (s *Server) GetSession(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		return s.sessionError(c, id, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{
		Session: sess.Info(),
		Budget:  sess.Budget(),
		Turns:   sess.Turns(),
	})
}

// DeleteSession handles DELETE /v1/sessions/:id.
func (s *Server) DeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.registry.Delete(id); err != nil {
		return s.sessionError(c, id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearSession handles POST /v1/sessions/:id/clear.
func (s *Server) ClearSession(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		return s.sessionError(c, id, err)
	}
	sess.Clear()
	return c.JSON(http.StatusOK, SessionResponse{
		Session: sess.Info(),
		Budget:  sess.Budget(),
	})
}

// UpdateSettings handles PUT /v1/sessions/:id/settings.
func (s *Server) UpdateSettings(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		return s.sessionError(c, id, err)
	}

	settings := sess.Settings()
	if err := c.Bind(&settings); err != nil {
		return s.invalid(c, id, "invalid request body")
	}
	if err := sess.UpdateSettings(settings); err != nil {
		return s.sessionError(c, id, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{
		Session: sess.Info(),
		Budget:  sess.Budget(),
	})
}

// GetUsage handles GET /v1/sessions/:id/usage.
func (s *Server) GetUsage(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		return s.sessionError(c, id, err)
	}
	return c.JSON(http.StatusOK, sess.Usage())
}

// CreateTurn handles POST /v1/sessions/:id/turns and answers once the turn
// has finished. Refusals and degraded replies are still 200s.
func (s *Server) CreateTurn(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		return s.sessionError(c, id, err)
	}

	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return s.invalid(c, id, "invalid request body")
	}

	res, err := s.pipeline.Run(c.Request().Context(), sess, req.Text)
	if err != nil {
		return s.sessionError(c, id, err)
	}
	return c.JSON(http.StatusOK, res)
}

// sessionError maps chat sentinels that carry no error code of their own.
func (s *Server) sessionError(c echo.Context, id string, err error) error {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return s.invalid(c, id, "text is required")
	case errors.Is(err, chat.ErrInvalidSettings):
		return s.invalid(c, id, strings.TrimPrefix(err.Error(), chat.ErrInvalidSettings.Error()+": "))
	}
	return s.fail(c, id, err)
}
