package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/n42group/mailmerge/internal/config"
	"github.com/n42group/mailmerge/internal/dispatch"
	"github.com/n42group/mailmerge/internal/mail"
	"github.com/n42group/mailmerge/internal/mail/mocks"
	"github.com/n42group/mailmerge/internal/pacing"
	"github.com/n42group/mailmerge/internal/queue"
	"github.com/n42group/mailmerge/internal/sendlog"
)

const annaCSV = "email,name\na@x.com,Anna\nb@x.com,"

func testConfig() *config.Config {
	return &config.Config{
		MailProvider:   config.ProviderSMTP,
		FromName:       "N42 Group",
		FromEmail:      "news@n42.example",
		DefaultSubject: "Wiadomość",
		BatchSize:      30,
		DelayMs:        0,
		BatchDelayMs:   0,
		SendTimeout:    5 * time.Second,
		EscapeName:     true,
	}
}

func factoryFor(tr mail.Transport, err error) TransportFactory {
	return func(*config.Config) (mail.Transport, error) { return tr, err }
}

func unpaced(time.Duration, time.Duration) pacing.Pacer { return pacing.Unpaced{} }

func newSendRouter(h *SendHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/send", h.Send)
	return r
}

func postJSON(t *testing.T, r http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/send", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type fakeQueue struct {
	jobs       []dispatch.Job
	delay      time.Duration
	batchDelay time.Duration
	err        error
}

func (q *fakeQueue) Enqueue(_ context.Context, job dispatch.Job, delay, batchDelay time.Duration) (queue.Enqueued, error) {
	q.jobs = append(q.jobs, job)
	q.delay, q.batchDelay = delay, batchDelay
	if q.err != nil {
		return queue.Enqueued{}, q.err
	}
	size := job.BatchSize
	return queue.Enqueued{
		JobID:      "job-1",
		Batches:    (len(job.Recipients) + size - 1) / size,
		Recipients: len(job.Recipients),
	}, nil
}

func TestSend_RendersEveryRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	sess := mocks.NewMockSession(ctrl)

	var sent []*mail.Message
	tr.EXPECT().Name().Return("smtp").AnyTimes()
	tr.EXPECT().Open(gomock.Any()).Return(sess, nil)
	sess.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *mail.Message) (string, error) {
		sent = append(sent, m)
		return "id-" + m.To.Email, nil
	}).Times(2)
	sess.EXPECT().Close().Return(nil)

	h := NewSendHandler(testConfig(), factoryFor(tr, nil), WithPacerFactory(unpaced))
	w := postJSON(t, newSendRouter(h), map[string]any{"csv": annaCSV, "html": "Hi {{name}}!"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 0, resp.Failed)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a@x.com", resp.Results[0].Email)
	assert.True(t, resp.Results[0].OK)

	require.Len(t, sent, 2)
	assert.Equal(t, "Hi Anna!", sent[0].HTML)
	assert.Equal(t, "a@x.com", sent[0].To.Email)
	assert.Equal(t, "Hi !", sent[1].HTML)
	assert.Equal(t, "Wiadomość", sent[0].Subject)
	assert.Equal(t, mail.Address{Name: "N42 Group", Email: "news@n42.example"}, sent[0].From)
}

func TestSend_RequestOverrides(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	sess := mocks.NewMockSession(ctrl)

	var msg *mail.Message
	tr.EXPECT().Name().Return("smtp").AnyTimes()
	tr.EXPECT().Open(gomock.Any()).Return(sess, nil)
	sess.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *mail.Message) (string, error) {
		msg = m
		return "id", nil
	})
	sess.EXPECT().Close().Return(nil)

	var gotDelay, gotBatchDelay time.Duration
	pacer := func(delay, batchDelay time.Duration) pacing.Pacer {
		gotDelay, gotBatchDelay = delay, batchDelay
		return pacing.Unpaced{}
	}

	h := NewSendHandler(testConfig(), factoryFor(tr, nil), WithPacerFactory(pacer))
	w := postJSON(t, newSendRouter(h), map[string]any{
		"csv":          "email;name\nz@x.com;<b>Zoe</b>",
		"html":         "<p>{{name}}</p>",
		"text":         "Hello {{name}}",
		"subject":      "News",
		"fromName":     "Team",
		"fromEmail":    "team@n42.example",
		"delayMs":      250,
		"batchDelayMs": 1000,
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, msg)
	assert.Equal(t, "<p>&lt;b&gt;Zoe&lt;/b&gt;</p>", msg.HTML)
	assert.Equal(t, "Hello <b>Zoe</b>", msg.Text)
	assert.Equal(t, "News", msg.Subject)
	assert.Equal(t, mail.Address{Name: "Team", Email: "team@n42.example"}, msg.From)
	assert.Equal(t, 250*time.Millisecond, gotDelay)
	assert.Equal(t, time.Second, gotBatchDelay)
}

func TestSend_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{"malformed JSON", `{"csv": "email`, "Invalid JSON body"},
		{"empty body", ``, "Invalid JSON body"},
		{"JSON array", `[]`, "Invalid JSON body"},
		{"missing csv", map[string]any{"html": "x"}, "csv is required"},
		{"csv not a string", map[string]any{"csv": 12, "html": "x"}, "csv must be a string"},
		{"missing html", map[string]any{"csv": annaCSV}, "html is required"},
		{"negative batch size", map[string]any{"csv": annaCSV, "html": "x", "batchSize": -1}, "batchSize must be at least 1"},
		{"zero batch size", map[string]any{"csv": annaCSV, "html": "x", "batchSize": 0}, "batchSize must be at least 1"},
		{"batch size not a number", map[string]any{"csv": annaCSV, "html": "x", "batchSize": "ten"}, "batchSize must be a number"},
		{"delay too large", map[string]any{"csv": annaCSV, "html": "x", "delayMs": 600001}, "delayMs must be at most 600000"},
		{"bad sender override", map[string]any{"csv": annaCSV, "html": "x", "fromEmail": "nope"}, "fromEmail must be a valid email address"},
		{"no email column", map[string]any{"csv": "mail,name\na@x.com,A", "html": "x"}, "CSV must have an email column"},
		{"empty csv", map[string]any{"csv": "\n\n", "html": "x"}, "CSV is empty"},
		{"malformed csv", map[string]any{"csv": "email,name\n\"a@x.com,A", "html": "x"}, "Invalid CSV"},
		{"no valid recipients", map[string]any{"csv": "email\nnot-an-address\n", "html": "x"}, "No valid recipients in CSV"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			tr := mocks.NewMockTransport(ctrl)
			tr.EXPECT().Name().Return("smtp").AnyTimes()

			h := NewSendHandler(testConfig(), factoryFor(tr, nil), WithPacerFactory(unpaced))
			w := postJSON(t, newSendRouter(h), tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.False(t, resp.OK)
			assert.Equal(t, KindValidation, resp.Kind)
			assert.Contains(t, resp.Error, tt.wantMsg)
		})
	}
}

func TestSend_TransportNotConfigured(t *testing.T) {
	cfgErr := &mail.ConfigError{Provider: "graph", Missing: []string{"GRAPH_TENANT_ID", "GRAPH_SENDER"}}
	h := NewSendHandler(testConfig(), factoryFor(nil, cfgErr), WithPacerFactory(unpaced))

	w := postJSON(t, newSendRouter(h), map[string]any{"csv": annaCSV, "html": "x"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, KindConfiguration, resp.Kind)
	assert.Equal(t, "Mail provider is not configured: missing GRAPH_TENANT_ID, GRAPH_SENDER", resp.Error)
}

func TestSend_OpenFailureIsTransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Name().Return("smtp").AnyTimes()
	tr.EXPECT().Open(gomock.Any()).Return(nil, errors.New("dial tcp: connection refused"))

	h := NewSendHandler(testConfig(), factoryFor(tr, nil), WithPacerFactory(unpaced))
	w := postJSON(t, newSendRouter(h), map[string]any{"csv": annaCSV, "html": "x"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, KindTransport, resp.Kind)
	assert.NotContains(t, resp.Error, "connection refused")
}

func TestSend_PerRecipientFailuresAreReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	sess := mocks.NewMockSession(ctrl)
	tr.EXPECT().Name().Return("smtp").AnyTimes()
	tr.EXPECT().Open(gomock.Any()).Return(sess, nil)
	gomock.InOrder(
		sess.EXPECT().Send(gomock.Any(), gomock.Any()).Return("", errors.New("550 mailbox unavailable")),
		sess.EXPECT().Send(gomock.Any(), gomock.Any()).Return("id-2", nil),
	)
	sess.EXPECT().Close().Return(nil)

	h := NewSendHandler(testConfig(), factoryFor(tr, nil), WithPacerFactory(unpaced))
	w := postJSON(t, newSendRouter(h), map[string]any{"csv": annaCSV + "\nbroken-row", "html": "x"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Sent)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 1, resp.Skipped)
	assert.False(t, resp.Results[0].OK)
	assert.Contains(t, resp.Results[0].Error, "550")
}

func TestSend_CampaignSkipsDelivered(t *testing.T) {
	store := sendlog.NewMemoryStore()
	require.NoError(t, store.Record(context.Background(), sendlog.Entry{CampaignID: "spring", Email: "A@x.com", Provider: "smtp"}))

	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	sess := mocks.NewMockSession(ctrl)
	tr.EXPECT().Name().Return("smtp").AnyTimes()
	tr.EXPECT().Open(gomock.Any()).Return(sess, nil)
	sess.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *mail.Message) (string, error) {
		assert.Equal(t, "b@x.com", m.To.Email)
		return "id-b", nil
	})
	sess.EXPECT().Close().Return(nil)

	h := NewSendHandler(testConfig(), factoryFor(tr, nil), WithPacerFactory(unpaced), WithSendLog(store))
	w := postJSON(t, newSendRouter(h), map[string]any{"csv": annaCSV, "html": "x", "campaignId": "spring"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Sent)
	assert.Equal(t, 1, resp.Skipped)
	assert.True(t, resp.Results[0].Skipped)

	delivered, err := store.Delivered(context.Background(), "spring")
	require.NoError(t, err)
	assert.Len(t, delivered, 2)
}

func TestSend_Async(t *testing.T) {
	newTransport := func(t *testing.T) mail.Transport {
		ctrl := gomock.NewController(t)
		tr := mocks.NewMockTransport(ctrl)
		tr.EXPECT().Name().Return("resend").AnyTimes()
		return tr
	}
	body := map[string]any{
		"csv":       "email\na@x.com\nb@x.com\nc@x.com",
		"html":      "x",
		"async":     true,
		"batchSize": 2,
	}

	t.Run("not configured", func(t *testing.T) {
		h := NewSendHandler(testConfig(), factoryFor(newTransport(t), nil))
		w := postJSON(t, newSendRouter(h), body)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, KindConfiguration, decodeError(t, w).Kind)
	})

	t.Run("enqueued", func(t *testing.T) {
		q := &fakeQueue{}
		cfg := testConfig()
		cfg.DelayMs, cfg.BatchDelayMs = 4000, 10000
		h := NewSendHandler(cfg, factoryFor(newTransport(t), nil), WithQueue(q))
		w := postJSON(t, newSendRouter(h), body)

		require.Equal(t, http.StatusAccepted, w.Code)
		var resp AsyncSendResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, AsyncSendResponse{OK: true, JobID: "job-1", Batches: 2, Recipients: 3}, resp)

		require.Len(t, q.jobs, 1)
		assert.Equal(t, 2, q.jobs[0].BatchSize)
		assert.Equal(t, 4*time.Second, q.delay)
		assert.Equal(t, 10*time.Second, q.batchDelay)
	})

	t.Run("queue failure", func(t *testing.T) {
		q := &fakeQueue{err: errors.New("sqs unavailable")}
		h := NewSendHandler(testConfig(), factoryFor(newTransport(t), nil), WithQueue(q))
		w := postJSON(t, newSendRouter(h), body)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, KindInternal, resp.Kind)
		assert.NotContains(t, resp.Error, "sqs")
		assert.Contains(t, resp.Error, "nothing was sent")
	})

	t.Run("job too large to queue", func(t *testing.T) {
		q := &fakeQueue{err: fmt.Errorf("%w: 300000 bytes", queue.ErrJobTooLarge)}
		h := NewSendHandler(testConfig(), factoryFor(newTransport(t), nil), WithQueue(q))
		w := postJSON(t, newSendRouter(h), body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, KindValidation, resp.Kind)
		assert.Equal(t, "Too many recipients to queue as one job", resp.Error)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoMethod(MethodNotAllowed)
	r.POST("/api/send", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/send", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"POST only"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	NewHealthHandler().Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
