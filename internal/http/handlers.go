package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/logging"
	"github.com/fyrsmithlabs/apreview/internal/review"
	"github.com/fyrsmithlabs/apreview/internal/session"
	"github.com/fyrsmithlabs/apreview/internal/sink"
)

func (s *Server) handleQuestionnaire(c echo.Context) error {
	return c.JSON(http.StatusOK, s.reviews.Questionnaire())
}

func (s *Server) handleCreateSession(c echo.Context) error {
	view, err := s.reviews.Create(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	view, err := s.reviews.Get(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := s.reviews.Delete(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleApplyAnswers(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req AnswersRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid answers request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	view, err := s.reviews.Apply(c.Request().Context(), id, req.Answers)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleSubmit(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	receipt, err := s.reviews.Submit(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err, receipt)
	}
	return c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleRetry(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	receipt, err := s.reviews.Retry(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err, receipt)
	}
	return c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleWorkbook(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	data, name, err := s.reviews.Workbook(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, sink.WorkbookContentType, data)
}

func sessionID(c echo.Context) (string, error) {
	id := c.Param("id")
	if err := logging.ValidateID(id, "session id"); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return id, nil
}

// fail maps a review error onto a response. receipt is passed along for
// delivery failures.
func (s *Server) fail(c echo.Context, err error, receipt ...*review.Receipt) error {
	ctx := c.Request().Context()

	var (
		missing *answers.MissingRequiredFieldError
		dup     *answers.DuplicateFieldError
		field   *review.FieldError
	)
	switch {
	case errors.As(err, &missing):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "required fields are blank",
			Fields: missing.Fields,
		})
	case errors.As(err, &dup):
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "submission could not be assembled"})
	case errors.As(err, &field):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: field.Field})
	case errors.Is(err, session.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
	case errors.Is(err, review.ErrAlreadySubmitted),
		errors.Is(err, review.ErrNotSubmitted),
		errors.Is(err, review.ErrAlreadyDelivered):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, review.ErrDelivery):
		resp := DeliveryFailedResponse{Error: err.Error(), StatusCode: sink.StatusCode(err)}
		if len(receipt) > 0 {
			resp.Receipt = receipt[0]
		}
		return c.JSON(http.StatusBadGateway, resp)
	case errors.Is(err, review.ErrRecord):
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "submission could not be recorded"})
	}

	s.logger.Error(ctx, "request failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
