package http

import (
	"errors"
	"strconv"

	nethttp "net/http"

	"github.com/Neol00/ClockSpeeds/internal/app"
	"github.com/Neol00/ClockSpeeds/internal/control"
	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/observability"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/Neol00/ClockSpeeds/internal/smu"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	defaultSamples = 60
	defaultHistory = 20
)

type Server struct {
	service *app.Service
	logger  zerolog.Logger
}

func NewServer(service *app.Service, logger zerolog.Logger) *Server {
	return &Server{
		service: service,
		logger:  logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type appliedResponse struct {
	Applied domain.AppliedSettings `json:"applied"`
	Warning string                 `json:"warning,omitempty"`
}

type intervalResponse struct {
	Seconds float64 `json:"seconds"`
}

type samplesResponse struct {
	Count    int               `json:"count"`
	Interval float64           `json:"interval_seconds"`
	Samples  []domain.Snapshot `json:"samples"`
}

type governorRequest struct {
	Governor string `json:"governor"`
}

type boostRequest struct {
	Enabled *bool `json:"enabled"`
}

// frequencyRequest takes either explicit per-thread limits or one pair for
// a list of threads.
type frequencyRequest struct {
	Limits  []domain.ThreadLimit `json:"limits"`
	Threads []int                `json:"threads"`
	MinMHz  int                  `json:"min_mhz"`
	MaxMHz  int                  `json:"max_mhz"`
}

type tdpRequest struct {
	Watts float64 `json:"watts"`
}

type pboRequest struct {
	Offset *int `json:"offset"`
}

type epbRequest struct {
	Value *int `json:"value"`
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.GetHealth)
	e.GET("/metrics", s.GetMetrics)
	e.GET("/samples", s.GetSamples)
	e.GET("/specs", s.GetSpecs)
	e.GET("/info", s.GetInfo)
	e.GET("/governors", s.GetGovernors)
	e.GET("/interval", s.GetInterval)
	e.GET("/applied", s.GetApplied)
	e.GET("/applied/history", s.GetAppliedHistory)

	e.POST("/governor", s.PostGovernor)
	e.POST("/boost", s.PostBoost)
	e.POST("/frequency", s.PostFrequency)
	e.POST("/tdp", s.PostTDP)
	e.POST("/pbo", s.PostPBO)
	e.POST("/epb", s.PostEPB)
}

func (s *Server) GetHealth(ctx echo.Context) error {
	return ctx.JSON(nethttp.StatusOK, s.service.Health())
}

func (s *Server) GetMetrics(ctx echo.Context) error {
	snapshot, err := s.service.Latest()
	if err != nil {
		return s.fail(ctx, "metrics", err)
	}
	return ctx.JSON(nethttp.StatusOK, snapshot)
}

func (s *Server) GetSamples(ctx echo.Context) error {
	count, err := queryCount(ctx, defaultSamples)
	if err != nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "invalid n"})
	}
	samples, err := s.service.Samples(count)
	if err != nil {
		return s.fail(ctx, "samples", err)
	}
	return ctx.JSON(nethttp.StatusOK, samplesResponse{
		Count:    len(samples),
		Interval: s.service.Interval().Seconds(),
		Samples:  samples,
	})
}

func (s *Server) GetSpecs(ctx echo.Context) error {
	specs, err := s.service.Specs(ctx.Request().Context())
	if err != nil {
		return s.fail(ctx, "specs", err)
	}
	return ctx.JSON(nethttp.StatusOK, specs)
}

func (s *Server) GetInfo(ctx echo.Context) error {
	info, err := s.service.Info()
	if err != nil {
		return s.fail(ctx, "info", err)
	}
	return ctx.JSON(nethttp.StatusOK, info)
}

func (s *Server) GetGovernors(ctx echo.Context) error {
	return ctx.JSON(nethttp.StatusOK, s.service.Governors())
}

func (s *Server) GetInterval(ctx echo.Context) error {
	return ctx.JSON(nethttp.StatusOK, intervalResponse{Seconds: s.service.Interval().Seconds()})
}

func (s *Server) GetApplied(ctx echo.Context) error {
	applied, err := s.service.Applied()
	if err != nil {
		return s.fail(ctx, "applied", err)
	}
	return ctx.JSON(nethttp.StatusOK, applied)
}

func (s *Server) GetAppliedHistory(ctx echo.Context) error {
	count, err := queryCount(ctx, defaultHistory)
	if err != nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "invalid n"})
	}
	records, err := s.service.AppliedHistory(count)
	if err != nil {
		return s.fail(ctx, "applied_history", err)
	}
	return ctx.JSON(nethttp.StatusOK, records)
}

func (s *Server) PostGovernor(ctx echo.Context) error {
	var req governorRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	applied, err := s.service.SetGovernor(ctx.Request().Context(), req.Governor)
	return s.respondApplied(ctx, "governor", applied, err)
}

func (s *Server) PostBoost(ctx echo.Context) error {
	var req boostRequest
	if err := ctx.Bind(&req); err != nil || req.Enabled == nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "enabled is required"})
	}
	applied, err := s.service.SetBoost(ctx.Request().Context(), *req.Enabled)
	return s.respondApplied(ctx, "boost", applied, err)
}

func (s *Server) PostFrequency(ctx echo.Context) error {
	var req frequencyRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	limits := req.Limits
	if len(limits) == 0 {
		limits = lo.Map(req.Threads, func(thread int, _ int) domain.ThreadLimit {
			return domain.ThreadLimit{Thread: thread, MinMHz: req.MinMHz, MaxMHz: req.MaxMHz}
		})
	}
	applied, err := s.service.SetFrequency(ctx.Request().Context(), limits)
	return s.respondApplied(ctx, "frequency", applied, err)
}

func (s *Server) PostTDP(ctx echo.Context) error {
	var req tdpRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	applied, err := s.service.SetTDP(ctx.Request().Context(), req.Watts)
	return s.respondApplied(ctx, "tdp", applied, err)
}

func (s *Server) PostPBO(ctx echo.Context) error {
	var req pboRequest
	if err := ctx.Bind(&req); err != nil || req.Offset == nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "offset is required"})
	}
	applied, err := s.service.SetPBOOffset(ctx.Request().Context(), *req.Offset)
	return s.respondApplied(ctx, "pbo", applied, err)
}

func (s *Server) PostEPB(ctx echo.Context) error {
	var req epbRequest
	if err := ctx.Bind(&req); err != nil || req.Value == nil {
		return ctx.JSON(nethttp.StatusBadRequest, errorResponse{Error: "value is required"})
	}
	applied, err := s.service.SetEnergyPerfBias(ctx.Request().Context(), *req.Value)
	return s.respondApplied(ctx, "epb", applied, err)
}

// respondApplied reports a partially applied frequency change as success
// with a warning listing the skipped threads.
func (s *Server) respondApplied(ctx echo.Context, handler string, applied domain.AppliedSettings, err error) error {
	if err != nil && applied.UpdatedAt.IsZero() {
		return s.fail(ctx, handler, err)
	}
	resp := appliedResponse{Applied: applied}
	if err != nil {
		resp.Warning = err.Error()
	}
	return ctx.JSON(nethttp.StatusOK, resp)
}

func (s *Server) fail(ctx echo.Context, handler string, err error) error {
	status := statusFor(err)
	if status >= nethttp.StatusInternalServerError && status != nethttp.StatusServiceUnavailable {
		observability.CaptureError(err, map[string]string{
			"component": "http",
			"handler":   handler,
		}, nil)
	}
	s.logger.Warn().Err(err).Str("handler", handler).Int("status", status).Msg("request failed")
	return ctx.JSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, control.ErrNoThreadsSelected),
		errors.Is(err, control.ErrNothingToApply),
		errors.Is(err, control.ErrInvalidSpeed),
		errors.Is(err, control.ErrInvalidGovernor),
		errors.Is(err, control.ErrInvalidEPB),
		errors.Is(err, control.ErrInvalidTDP),
		errors.Is(err, control.ErrInvalidPBO),
		errors.Is(err, app.ErrInvalidSize):
		return nethttp.StatusBadRequest
	case errors.Is(err, control.ErrNotIntel),
		errors.Is(err, control.ErrNotOther),
		errors.Is(err, control.ErrNoBoostControl),
		errors.Is(err, control.ErrTDPFileNotFound),
		errors.Is(err, smu.ErrNotInstalled):
		return nethttp.StatusConflict
	case errors.Is(err, privileged.ErrCanceled), errors.Is(err, app.ErrControlOff):
		return nethttp.StatusForbidden
	case errors.Is(err, app.ErrNoSample), errors.Is(err, privileged.ErrCommandNotFound):
		return nethttp.StatusServiceUnavailable
	}
	return nethttp.StatusInternalServerError
}

func queryCount(ctx echo.Context, fallback int) (int, error) {
	raw := ctx.QueryParam("n")
	if raw == "" {
		return fallback, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count <= 0 {
		return 0, errInvalidCount
	}
	return count, nil
}

var errInvalidCount = errors.New("invalid count")
