package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"traffic-quiz-service/internal/app"
	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// Handler exposes the quiz use cases over REST.
type Handler struct {
	auth         *Auth
	results      *app.ResultService
	gate         *app.QuotaGate
	subs         *app.SubscriptionService
	metered      *app.MeteredCaller
	practice     *app.PracticeService
	practiceSize int
	log          *logger.Logger
	now          func() time.Time
}

type HandlerDeps struct {
	Auth         *Auth
	Results      *app.ResultService
	Gate         *app.QuotaGate
	Subscription *app.SubscriptionService
	Metered      *app.MeteredCaller
	Practice     *app.PracticeService
	PracticeSize int
	Log          *logger.Logger
}

func NewHandler(d HandlerDeps) *Handler {
	size := d.PracticeSize
	if size <= 0 {
		size = 20
	}
	return &Handler{
		auth:         d.Auth,
		results:      d.Results,
		gate:         d.Gate,
		subs:         d.Subscription,
		metered:      d.Metered,
		practice:     d.Practice,
		practiceSize: size,
		log:          d.Log.With("component", "http"),
		now:          time.Now,
	}
}

type telegramLoginRequest struct {
	InitData string `json:"initData" binding:"required"`
}

func (h *Handler) TelegramLogin(c *gin.Context) {
	var req telegramLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "initData is required"})
		return
	}
	caller, err := h.auth.VerifyInitData(req.InitData)
	if err != nil {
		h.writeError(c, err)
		return
	}
	token, err := h.auth.Issue(caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": caller.UserID, "isAdmin": caller.IsAdmin})
}

func (h *Handler) ListResults(c *gin.Context) {
	view, err := h.results.Sync(c.Request.Context(), callerFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": view})
}

type recordResultRequest struct {
	TopicID     any                 `json:"topicId"`
	Correct     int                 `json:"correct"`
	Total       int                 `json:"total"`
	Answered    int                 `json:"answered"`
	TimeSpent   int                 `json:"time"`
	Questions   []domain.Question   `json:"questions"`
	UserAnswers []domain.UserAnswer `json:"userAnswers"`
}

func (h *Handler) RecordResult(c *gin.Context) {
	var req recordResultRequest
	if err := c.ShouldBindJSON(&req); err != nil || domain.TopicKey(req.TopicID) == "" || req.Total <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topicId and total are required"})
		return
	}
	var payload *domain.ResultPayload
	if len(req.Questions) > 0 || len(req.UserAnswers) > 0 {
		payload = &domain.ResultPayload{Questions: req.Questions, UserAnswers: req.UserAnswers}
	}
	result := domain.NewResult(req.TopicID, req.Correct, req.Total, req.Answered, req.TimeSpent, payload, h.now())
	view, err := h.results.Record(c.Request.Context(), callerFrom(c).UserID, result)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"result": result.Summary(), "results": view})
}

func (h *Handler) ReviewResult(c *gin.Context) {
	result, err := h.results.Review(c.Request.Context(), callerFrom(c).UserID, c.Param("topic"), c.Param("id"))
	if errors.Is(err, domain.ErrResultPayloadUnavailable) {
		c.JSON(http.StatusConflict, gin.H{"error": "payload_unavailable", "message": err.Error(), "result": result})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *Handler) ResultStats(c *gin.Context) {
	userID := callerFrom(c).UserID
	if _, err := h.results.Sync(c.Request.Context(), userID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": h.results.Stats(userID)})
}

func (h *Handler) Quota(c *gin.Context) {
	hint, _ := strconv.ParseBool(c.DefaultQuery("hint", "false"))
	decision, err := h.gate.Check(c.Request.Context(), callerFrom(c), hint)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quota": decision, "message": decision.Message()})
}

func (h *Handler) LoadSubscription(c *gin.Context) {
	caller := callerFrom(c)
	loaded, err := h.subs.Load(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	decision, err := h.gate.Check(c.Request.Context(), caller, false)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": loaded, "quota": decision})
}

type explainRequest struct {
	QuestionID    string `json:"questionId" binding:"required"`
	Slot          string `json:"slot"`
	Hint          bool   `json:"hint"`
	Question      string `json:"question" binding:"required"`
	WrongAnswer   string `json:"wrongAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

func (r explainRequest) call() app.ExplainCall {
	return app.ExplainCall{
		QuestionID: r.QuestionID,
		Slot:       r.Slot,
		Hint:       r.Hint,
		Request: domain.ExplainRequest{
			Question:      r.Question,
			WrongAnswer:   r.WrongAnswer,
			CorrectAnswer: r.CorrectAnswer,
		},
	}
}

func (h *Handler) Explain(c *gin.Context) {
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "questionId and question are required"})
		return
	}
	res, err := h.metered.Explain(c.Request.Context(), callerFrom(c), req.call())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type adviceRequest struct {
	Slot         string               `json:"slot"`
	ResultID     string               `json:"resultId"`
	Errors       []domain.AdviceError `json:"errors"`
	CorrectCount int                  `json:"correctCount"`
	TotalCount   int                  `json:"totalCount"`
}

func (r adviceRequest) call() app.AdviceCall {
	return app.AdviceCall{
		Slot: r.Slot,
		Request: domain.AdviceRequest{
			ResultID:     r.ResultID,
			Errors:       r.Errors,
			CorrectCount: r.CorrectCount,
			TotalCount:   r.TotalCount,
		},
	}
}

func (h *Handler) Advice(c *gin.Context) {
	var req adviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TotalCount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totalCount is required"})
		return
	}
	res, err := h.metered.Advise(c.Request.Context(), callerFrom(c), req.call())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Practice(c *gin.Context) {
	count := h.practiceSize
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
			return
		}
		count = n
	}
	qs, err := h.practice.Build(c.Request.Context(), callerFrom(c).UserID, c.Param("topic"), count)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": qs})
}

type paymentRequest struct {
	EventID   string    `json:"eventId"`
	UserID    int64     `json:"userId" binding:"required"`
	Tier      string    `json:"tier" binding:"required"`
	PeriodEnd time.Time `json:"periodEnd" binding:"required"`
	Amount    float64   `json:"amount"`
	OrderCode string    `json:"orderCode"`
}

func (h *Handler) RecordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event := domain.PaymentEvent{
		EventID:   req.EventID,
		UserID:    req.UserID,
		Tier:      domain.Tier(req.Tier),
		PeriodEnd: req.PeriodEnd.UTC(),
		Amount:    req.Amount,
		OrderCode: req.OrderCode,
	}
	switch event.Tier {
	case domain.TierBasic, domain.TierPremium, domain.TierUnlimited:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be a paid plan"})
		return
	}
	if err := h.subs.RecordPayment(c.Request.Context(), event); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// errorBody maps a use case error to an HTTP status and a stable error code.
func errorBody(err error) (int, gin.H) {
	var quotaErr *app.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		return http.StatusPaymentRequired, gin.H{
			"error":   "quota_exhausted",
			"message": quotaErr.Decision.Message(),
			"quota":   quotaErr.Decision,
		}
	case errors.Is(err, domain.ErrUpstreamCapacity):
		return http.StatusServiceUnavailable, gin.H{"error": "upstream_capacity", "message": err.Error()}
	case errors.Is(err, domain.ErrAIRequestFailed), errors.Is(err, domain.ErrAIEmptyResponse):
		return http.StatusBadGateway, gin.H{"error": "ai_failed", "message": err.Error()}
	case errors.Is(err, domain.ErrInvalidResult):
		return http.StatusBadRequest, gin.H{"error": "invalid_result", "message": err.Error()}
	case errors.Is(err, domain.ErrResultPayloadUnavailable):
		return http.StatusConflict, gin.H{"error": "payload_unavailable", "message": err.Error()}
	case errors.Is(err, domain.ErrResultNotFound), errors.Is(err, domain.ErrTopicNotFound):
		return http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()}
	}
	return http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal error"}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.log.Error("request failed", "path", c.FullPath(), "user_id", callerFrom(c).UserID, "error", err)
	}
	c.JSON(status, body)
}
