package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/metrics"
)

// Deps are the use cases exposed over HTTP.
type Deps struct {
	Catalog   *app.Catalog
	Authoring *app.Authoring
	Review    *app.Review
	Accounts  *app.Accounts
	Sessions  *app.SessionService
	WS        *WSHandler
	Log       *zap.Logger
}

// Response is the envelope of every REST reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type api struct {
	Deps
}

// NewRouter builds the gin engine: REST under /api, the session websocket at /ws.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(d.Log), requestMetrics())

	h := &api{Deps: d}
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if d.WS != nil {
		r.GET("/ws", gin.WrapF(d.WS.ServeWS))
	}

	g := r.Group("/api")
	g.POST("/login", h.login)
	g.POST("/register", h.register)

	g.GET("/quizzes", h.listQuizzes)
	g.GET("/quizzes/:quizId/sessions/:studentId", h.sessionSnapshot)
	g.POST("/quizzes/:quizId/release", h.releaseScores)
	g.POST("/quizzes/:quizId/hide", h.hideScores)

	g.GET("/students/:studentId/quizzes", h.studentQuizzes)
	g.GET("/students/:studentId/results", h.studentResults)

	g.GET("/draft", h.getDraft)
	g.PUT("/draft", h.putDraft)
	g.DELETE("/draft", h.discardDraft)
	g.POST("/draft/validate", h.validateDraft)
	g.POST("/draft/publish", h.publishDraft)

	g.GET("/results", h.results)
	g.GET("/results/summary", h.summary)
	g.GET("/results/export", h.export)
	return r
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Code: status, Message: http.StatusText(status), Data: data})
}

func abort(c *gin.Context, status int, message string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message, Data: data})
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrPageNotFound),
		errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuizExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrAlreadyAttempted), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (h *api) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		abort(c, status, "internal error", nil)
		return
	}
	var fields domain.ValidationErrors
	if errors.As(err, &fields) {
		abort(c, status, domain.ErrValidationFailed.Error(), fields)
		return
	}
	abort(c, status, err.Error(), nil)
}

func quizIDParam(c *gin.Context, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusBadRequest, "invalid quizId", nil)
		return 0, false
	}
	return id, true
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *api) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	user, err := h.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, user)
}

func (h *api) register(c *gin.Context) {
	var form app.RegistrationForm
	if err := c.ShouldBindJSON(&form); err != nil {
		abort(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	user, err := h.Accounts.Register(c.Request.Context(), form)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, user)
}

func (h *api) listQuizzes(c *gin.Context) {
	quizzes, err := h.Catalog.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	respond(c, http.StatusOK, quizzes)
}

func (h *api) sessionSnapshot(c *gin.Context) {
	quizID, valid := quizIDParam(c, c.Param("quizId"))
	if !valid {
		return
	}
	session, err := h.Sessions.Get(c.Param("studentId"), quizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, session.Snapshot())
}

func (h *api) studentQuizzes(c *gin.Context) {
	filter := app.QuizFilter(c.DefaultQuery("filter", string(app.FilterTotal)))
	switch filter {
	case app.FilterTotal, app.FilterCompleted, app.FilterMissing:
	default:
		abort(c, http.StatusBadRequest, "filter must be total, completed or missing", nil)
		return
	}
	quizzes, err := h.Catalog.StudentQuizzes(c.Request.Context(), c.Param("studentId"), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, quizzes)
}

func (h *api) studentResults(c *gin.Context) {
	results, err := h.Review.StudentResults(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, results)
}

func (h *api) getDraft(c *gin.Context) {
	draft, err := h.Authoring.LoadDraft(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, draft)
}

func (h *api) putDraft(c *gin.Context) {
	var draft app.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		abort(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Authoring.SaveDraft(c.Request.Context(), draft); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, draft)
}

func (h *api) discardDraft(c *gin.Context) {
	if err := h.Authoring.Discard(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// validateDraft checks the saved draft; ?step=details limits it to the first builder step.
func (h *api) validateDraft(c *gin.Context) {
	draft, err := h.Authoring.LoadDraft(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("step") == "details" {
		err = h.Authoring.ValidateDetails(draft)
	} else {
		err = h.Authoring.Validate(draft)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *api) publishDraft(c *gin.Context) {
	quiz, err := h.Authoring.PublishDraft(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, quiz)
}

func resultFilter(c *gin.Context) (app.ResultFilter, bool) {
	var filter app.ResultFilter
	if raw := c.Query("quizId"); raw != "" {
		id, valid := quizIDParam(c, raw)
		if !valid {
			return filter, false
		}
		filter.QuizID = id
	}
	if raw := c.Query("violations"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid violations flag", nil)
			return filter, false
		}
		filter.WithViolations = v
	}
	return filter, true
}

func (h *api) results(c *gin.Context) {
	filter, valid := resultFilter(c)
	if !valid {
		return
	}
	results, err := h.Review.Results(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, results)
}

type summaryResponse struct {
	Overview app.Overview      `json:"overview"`
	Quizzes  []app.QuizSummary `json:"quizzes"`
}

func (h *api) summary(c *gin.Context) {
	ctx := c.Request.Context()
	overview, err := h.Review.Overview(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	quizzes, err := h.Review.Summaries(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, summaryResponse{Overview: overview, Quizzes: quizzes})
}

func (h *api) export(c *gin.Context) {
	filter, valid := resultFilter(c)
	if !valid {
		return
	}
	var buf bytes.Buffer
	if err := h.Review.ExportXLSX(c.Request.Context(), &buf, filter); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="quiz-results.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

type visibilityResponse struct {
	QuizID   int64 `json:"quizId"`
	Released bool  `json:"released"`
	Updated  int   `json:"updated"`
}

func (h *api) releaseScores(c *gin.Context) {
	h.setVisibility(c, true)
}

func (h *api) hideScores(c *gin.Context) {
	h.setVisibility(c, false)
}

func (h *api) setVisibility(c *gin.Context, released bool) {
	quizID, valid := quizIDParam(c, c.Param("quizId"))
	if !valid {
		return
	}
	var (
		n   int
		err error
	)
	if released {
		n, err = h.Review.ReleaseScores(c.Request.Context(), quizID)
	} else {
		n, err = h.Review.HideScores(c.Request.Context(), quizID)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, visibilityResponse{QuizID: quizID, Released: released, Updated: n})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestCounter.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
