package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/config"
	"github.com/n42group/mailmerge/internal/dispatch"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/mail"
	"github.com/n42group/mailmerge/internal/middleware"
	"github.com/n42group/mailmerge/internal/pacing"
	"github.com/n42group/mailmerge/internal/queue"
	"github.com/n42group/mailmerge/internal/recipients"
	"github.com/n42group/mailmerge/internal/render"
	"github.com/n42group/mailmerge/internal/sendlog"
)

// SendRequest is the body of POST /api/send.
type SendRequest struct {
	CSV          string `json:"csv" binding:"required"`
	HTML         string `json:"html" binding:"required"`
	Subject      string `json:"subject,omitempty"`
	Text         string `json:"text,omitempty"`
	BatchSize    *int   `json:"batchSize,omitempty" binding:"omitempty,min=1,max=1000"`
	DelayMs      *int   `json:"delayMs,omitempty" binding:"omitempty,min=0,max=600000"`
	BatchDelayMs *int   `json:"batchDelayMs,omitempty" binding:"omitempty,min=0,max=600000"`
	FromName     string `json:"fromName,omitempty" binding:"omitempty,max=200"`
	FromEmail    string `json:"fromEmail,omitempty" binding:"omitempty,email"`
	CampaignID   string `json:"campaignId,omitempty" binding:"omitempty,max=200"`
	Async        bool   `json:"async,omitempty"`
}

// SendResponse is the synchronous result of a send.
type SendResponse = dispatch.Summary

// AsyncSendResponse is returned when the job was handed to the send worker.
type AsyncSendResponse struct {
	OK         bool   `json:"ok"`
	JobID      string `json:"jobId"`
	Batches    int    `json:"batches"`
	Recipients int    `json:"recipients"`
}

// TransportFactory builds the mail transport from configuration.
type TransportFactory func(cfg *config.Config) (mail.Transport, error)

// Enqueuer hands a job to the asynchronous send worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job dispatch.Job, delay, batchDelay time.Duration) (queue.Enqueued, error)
}

// PacerFactory builds the pacer for one inline send.
type PacerFactory func(delay, batchDelay time.Duration) pacing.Pacer

// SendHandler serves POST /api/send.
type SendHandler struct {
	cfg          *config.Config
	transport    mail.Transport
	transportErr error
	queue        Enqueuer
	sendLog      sendlog.Store
	newPacer     PacerFactory
}

// SendHandlerOption configures optional SendHandler dependencies.
type SendHandlerOption func(*SendHandler)

// WithQueue enables async: true requests.
func WithQueue(q Enqueuer) SendHandlerOption {
	return func(h *SendHandler) { h.queue = q }
}

// WithSendLog enables campaign deduplication.
func WithSendLog(s sendlog.Store) SendHandlerOption {
	return func(h *SendHandler) { h.sendLog = s }
}

// WithPacerFactory replaces the default interval pacer.
func WithPacerFactory(f PacerFactory) SendHandlerOption {
	return func(h *SendHandler) { h.newPacer = f }
}

// NewSendHandler builds the transport once so a warm container keeps its
// cached Graph token. A configuration error is kept and reported on every
// request instead of failing startup.
func NewSendHandler(cfg *config.Config, newTransport TransportFactory, opts ...SendHandlerOption) *SendHandler {
	if newTransport == nil {
		newTransport = mail.NewTransport
	}
	h := &SendHandler{
		cfg: cfg,
		newPacer: func(delay, batchDelay time.Duration) pacing.Pacer {
			return pacing.NewIntervalPacer(delay, batchDelay)
		},
	}
	h.transport, h.transportErr = newTransport(cfg)
	if h.transportErr != nil {
		logger.Warn("Mail transport is not configured", zap.String("provider", cfg.MailProvider), zap.Error(h.transportErr))
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send godoc
// @Summary      Send a mail merge
// @Description  Renders the name placeholder into the HTML template for every CSV recipient and sends them in paced batches. With async=true the batches are queued for the send worker.
// @Tags         send
// @Accept       json
// @Produce      json
// @Param        request  body      SendRequest  true  "Recipients and template"
// @Success      200      {object}  SendResponse
// @Success      202      {object}  AsyncSendResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      405      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Security     BearerAuth
// @Security     PanelPassword
// @Router       /api/send [post]
func (h *SendHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(c, http.StatusRequestEntityTooLarge, KindValidation, "Request body too large", err)
			return
		}
		sendValidationError(c, bindingMessage(err), err)
		return
	}
	if req.BatchSize != nil && *req.BatchSize < 1 {
		sendValidationError(c, "batchSize must be at least 1", nil)
		return
	}

	parsed, err := recipients.Parse(req.CSV)
	if err != nil {
		msg := "Invalid CSV: " + err.Error()
		if isAny(err, recipients.ErrNoEmailColumn, recipients.ErrEmpty) {
			msg = err.Error()
		}
		sendValidationError(c, msg, err)
		return
	}
	if len(parsed.Recipients) == 0 {
		sendValidationError(c, "No valid recipients in CSV", nil)
		return
	}

	if h.transportErr != nil {
		sendError(c, http.StatusInternalServerError, KindConfiguration, configMessage(h.transportErr), h.transportErr)
		return
	}

	job := h.buildJob(req, parsed.Recipients)
	delay := time.Duration(intOr(req.DelayMs, h.cfg.DelayMs)) * time.Millisecond
	batchDelay := time.Duration(intOr(req.BatchDelayMs, h.cfg.BatchDelayMs)) * time.Millisecond
	log := middleware.LogWithCorrelationID(c.Request.Context())

	log.Info("Send request accepted",
		zap.String("provider", h.transport.Name()),
		zap.Int("recipients", len(job.Recipients)),
		zap.Int("invalid_rows", parsed.Skipped),
		zap.Int("batch_size", job.BatchSize),
		zap.Bool("async", req.Async),
		zap.String("campaign_id", job.CampaignID))

	if req.Async {
		h.enqueue(c, job, delay, batchDelay)
		return
	}

	d := &dispatch.Dispatcher{
		Transport:   h.transport,
		Pacer:       h.newPacer(delay, batchDelay),
		Renderer:    render.Renderer{EscapeName: h.cfg.EscapeName},
		SendLog:     h.sendLog,
		SendTimeout: h.cfg.SendTimeout,
		Log:         log,
	}
	summary, err := d.Run(c.Request.Context(), job)
	if err != nil {
		var openErr *dispatch.OpenError
		if errors.As(err, &openErr) {
			sendError(c, http.StatusInternalServerError, KindTransport, "Could not connect to the mail provider", err)
			return
		}
		sendError(c, http.StatusInternalServerError, KindInternal, "Internal server error", err)
		return
	}

	summary.Skipped += parsed.Skipped
	c.JSON(http.StatusOK, summary)
}

func (h *SendHandler) enqueue(c *gin.Context, job dispatch.Job, delay, batchDelay time.Duration) {
	if h.queue == nil {
		sendError(c, http.StatusInternalServerError, KindConfiguration, "Async sending is not configured", nil)
		return
	}
	// Enqueue publishes a single message, so a failure leaves nothing queued
	// and the client can safely resubmit.
	res, err := h.queue.Enqueue(c.Request.Context(), job, delay, batchDelay)
	if errors.Is(err, queue.ErrJobTooLarge) {
		sendValidationError(c, "Too many recipients to queue as one job", err)
		return
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, KindInternal, "Could not queue the send job; nothing was sent", err)
		return
	}
	c.JSON(http.StatusAccepted, AsyncSendResponse{
		OK:         true,
		JobID:      res.JobID,
		Batches:    res.Batches,
		Recipients: res.Recipients,
	})
}

func (h *SendHandler) buildJob(req SendRequest, list []recipients.Recipient) dispatch.Job {
	from := mail.Address{Name: h.cfg.FromName, Email: h.cfg.SenderEmail()}
	if req.FromName != "" {
		from.Name = req.FromName
	}
	if req.FromEmail != "" {
		from.Email = req.FromEmail
	}
	subject := req.Subject
	if strings.TrimSpace(subject) == "" {
		subject = h.cfg.DefaultSubject
	}
	return dispatch.Job{
		CampaignID: strings.TrimSpace(req.CampaignID),
		From:       from,
		Subject:    subject,
		HTML:       req.HTML,
		Text:       req.Text,
		Recipients: list,
		BatchSize:  intOr(req.BatchSize, h.cfg.BatchSize),
	}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func configMessage(err error) string {
	var cfgErr *mail.ConfigError
	if errors.As(err, &cfgErr) {
		return "Mail provider is not configured: missing " + strings.Join(cfgErr.Missing, ", ")
	}
	return "Mail provider is not configured"
}

// bindingMessage turns a JSON decode or validation failure into a client message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &verrs) && len(verrs) > 0:
		return fieldMessage(verrs[0])
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("%s must be a %s", typeErr.Field, jsonKind(typeErr.Type))
	default:
		return "Invalid JSON body"
	}
}

func fieldMessage(fe validator.FieldError) string {
	name := jsonFieldName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "email":
		return name + " must be a valid email address"
	default:
		return name + " is invalid"
	}
}

var sendRequestType = reflect.TypeOf(SendRequest{})

func jsonFieldName(structField string) string {
	f, ok := sendRequestType.FieldByName(structField)
	if !ok {
		return structField
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return structField
	}
	return name
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return t.Kind().String()
	}
}

// PanelSend godoc
// @Summary      Send a mail merge from the panel
// @Description  Same as /api/send, gated by the panel password. The server supplies the send token.
// @Tags         send
// @Accept       json
// @Produce      json
// @Param        request  body      SendRequest  true  "Recipients and template"
// @Success      200      {object}  SendResponse
// @Success      202      {object}  AsyncSendResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Security     PanelPassword
// @Router       /api/panel-send [post]
func (h *SendHandler) PanelSend(c *gin.Context) {
	h.Send(c)
}
