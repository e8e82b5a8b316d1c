package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"filedownloader/internal/apperr"
	"filedownloader/internal/command"
)

// CommandHandler runs one raw command and renders its response.
type CommandHandler interface {
	Handle(ctx context.Context, raw []byte) command.Response
}

type API struct {
	commands  CommandHandler
	gatherer  prometheus.Gatherer
	semaphore chan struct{}
}

// NewAPI creates the HTTP surface. At most maxInflight commands run at once;
// further requests are answered with 503.
func NewAPI(commands CommandHandler, gatherer prometheus.Gatherer, maxInflight int) *API {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	return &API{
		commands:  commands,
		gatherer:  gatherer,
		semaphore: make(chan struct{}, maxInflight),
	}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/commands", a.RunCommand)
	}
	router.GET("/healthz", a.Health)
	if a.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}
}

// IsBusy reports whether the maximum number of commands is already running
func (a *API) IsBusy() bool {
	return len(a.semaphore) >= cap(a.semaphore)
}

// RunCommand executes one command object and returns its response object
func (a *API) RunCommand(c *gin.Context) {
	logger := zerolog.Ctx(c.Request.Context())

	select {
	case a.semaphore <- struct{}{}:
		defer func() { <-a.semaphore }()
	default:
		logger.Warn().Msg("rejecting command: server is at max concurrency")
		c.JSON(http.StatusServiceUnavailable, command.Response{
			Status:  command.StatusError,
			Message: "server busy",
			Code:    "busy",
		})
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, command.MaxLineSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Warn().Err(err).Msg("invalid command body")
		c.JSON(status, command.ErrorResponse(apperr.Wrap(apperr.KindMalformedRequest, err, "cannot read request body")))
		return
	}

	resp := a.commands.Handle(c.Request.Context(), raw)
	c.JSON(statusFor(resp), resp)
}

// Health reports liveness
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "busy": a.IsBusy()})
}

func statusFor(resp command.Response) int {
	if resp.Status != command.StatusError {
		return http.StatusOK
	}
	switch apperr.Kind(resp.Code) {
	case apperr.KindMalformedRequest, apperr.KindInvalidURL, apperr.KindUnknownCommand, apperr.KindBatchRejected:
		return http.StatusBadRequest
	case apperr.KindSchemeNotAllowed, apperr.KindHostNotAllowed:
		return http.StatusForbidden
	case apperr.KindAlreadyExists:
		return http.StatusConflict
	case apperr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindHTTPStatus, apperr.KindRequestFailed, apperr.KindBatchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
