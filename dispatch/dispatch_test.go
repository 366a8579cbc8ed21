package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	topic    string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	p.topic = topic
	p.payloads = append(p.payloads, payload)
	return "msg-1", p.err
}

type response struct {
	Data   *Receipt `json:"data"`
	Notice struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Severity    string `json:"severity"`
	} `json:"notice"`
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/notifications/email", h.SendEmail)
	r.POST("/api/notifications/sms", h.SendSMS)
	return r
}

func post(t *testing.T, r *gin.Engine, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func newHandler(cfg Config, pub Publisher) *Handler {
	logger, _ := test.NewNullLogger()
	return &Handler{Config: cfg, Publisher: pub, Logger: logger, NewID: uuid.NewString}
}

func TestSendEmail(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(newHandler(Config{EmailAPIKey: "key", Topic: "notifications"}, pub))

	code, out := post(t, r, "/api/notifications/email", `{"to":"ama@example.com","subject":"Loan approved","body":"Congratulations"}`)
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, out.Data)
	assert.True(t, out.Data.Success)
	_, err := uuid.Parse(out.Data.ID)
	assert.NoError(t, err)
	assert.Equal(t, "success", out.Notice.Severity)

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "notifications", pub.topic)
	audit := pub.payloads[0].(auditEnvelope)
	assert.Equal(t, out.Data.ID, audit.ID)
	assert.Equal(t, "email", audit.Channel)
	assert.Equal(t, len("Congratulations"), audit.Length)
}

func TestSendEmail_MissingFields(t *testing.T) {
	r := newRouter(newHandler(Config{EmailAPIKey: "key"}, nil))

	code, out := post(t, r, "/api/notifications/email", `{"to":"ama@example.com","body":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Nil(t, out.Data)
	assert.Equal(t, "error", out.Notice.Severity)
	assert.Equal(t, "required: body, subject", out.Notice.Description)

	code, _ = post(t, r, "/api/notifications/email", `{"to":"not-an-email","subject":"s","body":"b"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = post(t, r, "/api/notifications/email", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSendEmail_MissingCredentials(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(newHandler(Config{Topic: "notifications"}, pub))

	code, out := post(t, r, "/api/notifications/email", `{"to":"ama@example.com","subject":"s","body":"b"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Nil(t, out.Data)
	assert.Equal(t, "Email unavailable", out.Notice.Title)
	assert.Empty(t, pub.payloads)

	// field validation comes first
	code, _ = post(t, r, "/api/notifications/email", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSendSMS(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("pubsub down")}
	r := newRouter(newHandler(Config{SmsAPIKey: "key", Topic: "notifications", PhoneRegion: "GH"}, pub))

	code, out := post(t, r, "/api/notifications/sms", `{"to":"024 123 4567","message":"Your repayment is due"}`)
	assert.Equal(t, http.StatusOK, code, "publish failures do not fail the request")
	require.NotNil(t, out.Data)
	assert.True(t, out.Data.Success)
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "+233241234567", pub.payloads[0].(auditEnvelope).To)

	code, out = post(t, r, "/api/notifications/sms", `{"to":"12","message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid recipient", out.Notice.Title)

	code, out = post(t, r, "/api/notifications/sms", `{"to":"0241234567"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "required: message", out.Notice.Description)
}

func TestSendSMS_MissingCredentials(t *testing.T) {
	r := newRouter(newHandler(Config{PhoneRegion: "GH"}, nil))
	code, out := post(t, r, "/api/notifications/sms", `{"to":"0241234567","message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "SMS unavailable", out.Notice.Title)
}
