package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhouzirui/care-portal/backend/internal/model/appointment"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/model/prescription"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

const defaultPollInterval = 500 * time.Millisecond

// ClientConfig configures the HTTP collaborator client.
type ClientConfig struct {
	BaseURL      string
	PatientID    string
	Timeout      time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// Client implements Backend over the backend's REST API.
type Client struct {
	baseURL      *url.URL
	patientID    string
	pollInterval time.Duration
	http         *http.Client
	logger       *logging.Logger
	tracer       trace.Tracer
}

var _ Backend = (*Client)(nil)

// NewClient validates cfg and returns a ready client.
func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base url %q: scheme must be http or https", raw)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		baseURL:      base,
		patientID:    cfg.PatientID,
		pollInterval: poll,
		http:         httpClient,
		logger:       logger,
		tracer:       otel.Tracer("care-portal/backend"),
	}, nil
}

// ListSchedules calls GET /doctors/schedules.
func (c *Client) ListSchedules(ctx context.Context, department, date string) ([]doctor.Doctor, error) {
	query := url.Values{}
	query.Set("department", department)
	query.Set("date", date)

	var out []doctor.Doctor
	if err := c.doJSON(ctx, http.MethodGet, "/doctors/schedules", query, nil, &out); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return out, nil
}

// Book calls POST /appointments.
func (c *Client) Book(ctx context.Context, draft appointment.Draft) (appointment.Confirmation, error) {
	var out appointment.Confirmation
	if err := c.doJSON(ctx, http.MethodPost, "/appointments", nil, draft, &out); err != nil {
		return appointment.Confirmation{}, fmt.Errorf("book appointment: %w", err)
	}
	return out, nil
}

// ListAppointments calls GET /appointments.
func (c *Client) ListAppointments(ctx context.Context) ([]appointment.Confirmation, error) {
	query := url.Values{}
	query.Set("patientId", c.patientID)

	var out []appointment.Confirmation
	if err := c.doJSON(ctx, http.MethodGet, "/appointments", query, nil, &out); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// Upload sends metadata and files as multipart/form-data to POST /prescriptions.
func (c *Client) Upload(ctx context.Context, meta prescription.Metadata, files []prescription.FileRef) (prescription.Record, error) {
	body, contentType, err := encodeUpload(meta, files)
	if err != nil {
		return prescription.Record{}, fmt.Errorf("encode upload: %w", err)
	}

	var out prescription.Record
	if err := c.do(ctx, http.MethodPost, "/prescriptions", nil, body, contentType, &out); err != nil {
		return prescription.Record{}, fmt.Errorf("upload prescription: %w", err)
	}
	return out, nil
}

// History calls GET /prescriptions.
func (c *Client) History(ctx context.Context, offset int) (prescription.HistoryPage, error) {
	query := url.Values{}
	query.Set("patientId", c.patientID)
	query.Set("offset", strconv.Itoa(offset))

	var out prescription.HistoryPage
	if err := c.doJSON(ctx, http.MethodGet, "/prescriptions", query, nil, &out); err != nil {
		return prescription.HistoryPage{}, fmt.Errorf("load prescription history: %w", err)
	}
	return out, nil
}

// Get calls GET /prescriptions/{id}.
func (c *Client) Get(ctx context.Context, id string) (prescription.Record, error) {
	var out prescription.Record
	if err := c.doJSON(ctx, http.MethodGet, "/prescriptions/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return prescription.Record{}, fmt.Errorf("get prescription %s: %w", id, err)
	}
	return out, nil
}

// StartSession calls POST /chat/sessions.
func (c *Client) StartSession(ctx context.Context, category string) (chat.Session, error) {
	payload := map[string]string{"category": category}
	var out chat.Session
	if err := c.doJSON(ctx, http.MethodPost, "/chat/sessions", nil, payload, &out); err != nil {
		return chat.Session{}, fmt.Errorf("start chat session: %w", err)
	}
	return out, nil
}

// Sessions calls GET /chat/sessions.
func (c *Client) Sessions(ctx context.Context, category string) ([]chat.Session, error) {
	query := url.Values{}
	query.Set("patientId", c.patientID)
	if category != "" {
		query.Set("category", category)
	}

	var out []chat.Session
	if err := c.doJSON(ctx, http.MethodGet, "/chat/sessions", query, nil, &out); err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	return out, nil
}

// Session calls GET /chat/sessions/{id}. The answer carries the transcript.
func (c *Client) Session(ctx context.Context, sessionID string) (chat.Session, error) {
	var out chat.Session
	if err := c.doJSON(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(sessionID), nil, nil, &out); err != nil {
		return chat.Session{}, fmt.Errorf("load chat session: %w", err)
	}
	return out, nil
}

// CloseSession calls POST /chat/sessions/{id}/close.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "close"), nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("close chat session: %w", err)
	}
	return nil
}

// PostMessage calls POST /chat/sessions/{id}/messages.
func (c *Client) PostMessage(ctx context.Context, sessionID, text string) (chat.Message, error) {
	payload := map[string]string{"text": text}
	var out chat.Message
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "messages"), nil, payload, &out); err != nil {
		return chat.Message{}, fmt.Errorf("post chat message: %w", err)
	}
	return out, nil
}

// Messages calls GET /chat/sessions/{id}/messages.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var out []chat.Message
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID, "messages"), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("load chat messages: %w", err)
	}
	return out, nil
}

// AwaitReply polls the message history until a received message follows
// afterID.
func (c *Client) AwaitReply(ctx context.Context, sessionID, afterID string) (chat.Message, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		messages, err := c.Messages(ctx, sessionID)
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("chat reply poll failed", "session_id", sessionID, "error", err)
		}
		if reply, ok := ReplyAfter(messages, afterID); ok {
			return reply, nil
		}

		select {
		case <-ctx.Done():
			return chat.Message{}, fmt.Errorf("%w: %v", ErrNoReply, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ReplyAfter returns the first received message that follows the message
// with id afterID.
func ReplyAfter(messages []chat.Message, afterID string) (chat.Message, bool) {
	start := -1
	for i, msg := range messages {
		if msg.ID == afterID {
			start = i
			break
		}
	}
	if start < 0 {
		return chat.Message{}, false
	}
	for _, msg := range messages[start+1:] {
		if msg.Direction == chat.Received {
			return msg, true
		}
	}
	return chat.Message{}, false
}

func sessionPath(sessionID, leaf string) string {
	return "/chat/sessions/" + url.PathEscape(sessionID) + "/" + leaf
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, query, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	endpoint := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", endpoint.String()),
	)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}

func encodeUpload(meta prescription.Metadata, files []prescription.FileRef) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"type", meta.Type},
		{"doctorName", meta.DoctorName},
		{"date", meta.Date},
		{"notes", meta.Notes},
	}
	for _, field := range fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}

	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[]"; filename=%q`, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
