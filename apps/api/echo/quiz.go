package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
)

type quizApi struct {
	svc    *quiz.Service
	usrSvc *user.Service
}

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *quiz.Service, usrSvc *user.Service) {
	api := quizApi{
		svc:    svc,
		usrSvc: usrSvc,
	}

	// student portal
	sg := g.Group("/student", jwt, studentMiddleware())
	sg.GET("/tests", api.availableTests)
	sg.POST("/tests/:id/start", api.startAttempt)
	sg.POST("/attempts/:id/submit", api.submitAttempt)
	sg.GET("/attempts/:id/result", api.attemptResult)

	// teacher portal
	tg := g.Group("/teacher", jwt, teacherMiddleware())
	tg.GET("/tests/:id/results", api.testResults)
	tg.GET("/attempts/:id", api.attemptDetails)
}

// Student Handlers

func (api *quizApi) availableTests(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	tests, err := api.svc.AvailableTests(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying available tests")
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api *quizApi) startAttempt(ctx echo.Context) error {
	testID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	started, created, err := api.svc.StartAttempt(ctx.Request().Context(), usr.ID, testID)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	if created {
		return ctx.JSON(http.StatusCreated, started)
	}
	return ctx.JSON(http.StatusOK, started)
}

func (api *quizApi) submitAttempt(ctx echo.Context) error {
	attemptID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data quiz.SubmitRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}

	summary, err := api.svc.SubmitAttempt(ctx.Request().Context(), usr.ID, attemptID, data)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *quizApi) attemptResult(ctx echo.Context) error {
	attemptID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	result, err := api.svc.AttemptResult(ctx.Request().Context(), usr.ID, attemptID)
	if err != nil {
		return errors.Wrap(err, "getting attempt result")
	}
	return ctx.JSON(http.StatusOK, result)
}

// Teacher Handlers

func (api *quizApi) testResults(ctx echo.Context) error {
	testID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rows, err := api.svc.TestResults(ctx.Request().Context(), usr.ID, testID, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying test results")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *quizApi) attemptDetails(ctx echo.Context) error {
	attemptID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	details, err := api.svc.AttemptDetails(ctx.Request().Context(), usr.ID, attemptID)
	if err != nil {
		return errors.Wrap(err, "getting attempt details")
	}
	return ctx.JSON(http.StatusOK, details)
}
