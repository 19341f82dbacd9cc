// Package gateway wraps the Feelink analysis backend: three chat/analysis
// operations plus device registration. Every call is fire-once; retrying
// is the caller's decision.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"feelink-client-go/internal/domain/conversation"
	platformerrors "feelink-client-go/internal/platform/errors"
	"feelink-client-go/internal/platform/logging"
)

const (
	routeAnalyze        = "/continue_test"
	routeChatTurn       = "/test"
	routeAnalysisByID   = "/feelink/analysis/"
	routeRegisterDevice = "/register_device"

	defaultTimeout = 15 * time.Second
)

// Config describes the backend endpoint.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	ReplyTimeout   time.Duration
	AppName        string
	// DefaultQuestion substitutes for an empty analysis question.
	DefaultQuestion string
	Logger          *logging.Logger
}

// Client is the stateless backend gateway. It owns request construction
// and response decoding; it never retries and never caches.
type Client struct {
	baseURL         string
	appName         string
	defaultQuestion string
	logger          *logging.Logger

	// replyClient carries the tighter bound used on the
	// notification-reply path.
	httpClient  *http.Client
	replyClient *http.Client
}

func New(cfg Config) (*Client, error) {
	const op = "new_client"

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, platformerrors.New(platformerrors.KindInvalidRequest, op,
			fmt.Sprintf("invalid base URL %q", cfg.BaseURL))
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultTimeout
	}
	replyTimeout := cfg.ReplyTimeout
	if replyTimeout <= 0 {
		replyTimeout = requestTimeout
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		appName:         cfg.AppName,
		defaultQuestion: cfg.DefaultQuestion,
		logger:          cfg.Logger,
		httpClient:      &http.Client{Timeout: requestTimeout},
		replyClient:     &http.Client{Timeout: replyTimeout},
	}, nil
}

// analysisAnswer is the minimal body of a shortcut analysis response.
type analysisAnswer struct {
	Answer string `json:"answer"`
}

// SubmitAnalysis uploads a screenshot with a question and returns the
// backend's answer text. The push notification that follows is delivered
// out of band.
func (c *Client) SubmitAnalysis(ctx context.Context, imageData []byte, question string) (string, error) {
	const op = "submit_analysis"

	format, err := sniffImageFormat(imageData)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "unsupported image payload", err)
	}
	if question == "" {
		question = c.defaultQuestion
	}

	body, contentType, err := encodeMultipart(
		filePart("image_file", "screenshot.jpg", "image/"+format, imageData),
		textPart("user_question", question),
	)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "encode request body", err)
	}

	data, err := c.post(ctx, c.httpClient, op, routeAnalyze, contentType, body)
	if err != nil {
		return "", err
	}

	var decoded analysisAnswer
	if err := sonic.Unmarshal(data, &decoded); err != nil {
		return "", platformerrors.Wrap(platformerrors.KindDecode, op, "decode answer body", err)
	}
	c.logger.InfoTag("Gateway", "analysis submitted, answer %d bytes", len(decoded.Answer))
	return decoded.Answer, nil
}

// ContinueChat sends a free-text reply into an existing conversation.
// This is the notification-reply path and uses the tighter timeout.
func (c *Client) ContinueChat(ctx context.Context, message, conversationID string) (*conversation.ChatResponse, error) {
	const op = "continue_chat"

	body, contentType, err := encodeMultipart(
		textPart("user_question", message),
		textPart("conversation_id", conversationID),
	)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "encode request body", err)
	}

	data, err := c.post(ctx, c.replyClient, op, routeAnalyze, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.decodeChatResponse(op, data)
}

// SendChatTurn sends one voice-chat turn bound to an analysis, with an
// optional image attachment.
func (c *Client) SendChatTurn(ctx context.Context, message, analysisID string, imageData []byte) (*conversation.ChatResponse, error) {
	const op = "send_chat_turn"

	parts := make([]part, 0, 4)
	if len(imageData) > 0 {
		format, err := sniffImageFormat(imageData)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "unsupported image payload", err)
		}
		parts = append(parts, filePart("image_file", "chat_image.jpg", "image/"+format, imageData))
	}
	parts = append(parts,
		textPart("user_question", message),
		textPart("analysis_id", analysisID),
		textPart("app_name", c.appName),
	)

	body, contentType, err := encodeMultipart(parts...)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "encode request body", err)
	}

	data, err := c.post(ctx, c.httpClient, op, routeChatTurn, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.decodeChatResponse(op, data)
}

// FetchAnalysis retrieves a stored analysis result by id.
func (c *Client) FetchAnalysis(ctx context.Context, analysisID string) (*conversation.AnalysisResult, error) {
	const op = "fetch_analysis"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+routeAnalysisByID+url.PathEscape(analysisID), nil)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "build request", err)
	}

	data, err := c.send(c.httpClient, op, req)
	if err != nil {
		return nil, err
	}

	var result conversation.AnalysisResult
	if err := sonic.Unmarshal(data, &result); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindDecode, op, "decode analysis result", err)
	}
	return &result, nil
}

// Registration is the device record pushed to /register_device.
type Registration struct {
	InstallationID string
	Platform       string
	DeviceToken    string
	Tags           []string
}

// RegisterDevice announces the push token to the backend. A non-200
// answer is an error the caller may treat as non-fatal.
func (c *Client) RegisterDevice(ctx context.Context, reg Registration) error {
	const op = "register_device"

	form := url.Values{}
	form.Set("installation_id", reg.InstallationID)
	form.Set("platform", reg.Platform)
	form.Set("device_token", reg.DeviceToken)
	form.Set("tags", strings.Join(reg.Tags, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+routeRegisterDevice, strings.NewReader(form.Encode()))
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := c.send(c.httpClient, op, req); err != nil {
		return err
	}
	c.logger.InfoTag("Gateway", "device %s registered", reg.InstallationID)
	return nil
}

func (c *Client) decodeChatResponse(op string, data []byte) (*conversation.ChatResponse, error) {
	var decoded conversation.ChatResponse
	if err := sonic.Unmarshal(data, &decoded); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindDecode, op, "decode chat response", err)
	}
	return &decoded, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, op, route, contentType string, body *bytes.Buffer) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, body)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindInvalidRequest, op, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.send(client, op, req)
}

func (c *Client) send(client *http.Client, op string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, op, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, op, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnTag("Gateway", "%s: unexpected status %d", op, resp.StatusCode)
		return nil, platformerrors.New(platformerrors.KindServer, op,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	if len(data) == 0 {
		return nil, platformerrors.New(platformerrors.KindTransport, op, "empty response body")
	}
	return data, nil
}

// part is one section of a multipart request body.
type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func textPart(field, value string) part {
	return part{field: field, data: []byte(value)}
}

func filePart(field, filename, contentType string, data []byte) part {
	return part{field: field, filename: filename, contentType: contentType, data: data}
}

func encodeMultipart(parts ...part) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, p := range parts {
		var (
			dst io.Writer
			err error
		)
		if p.filename != "" {
			header := textproto.MIMEHeader{}
			header.Set("Content-Disposition",
				fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
			header.Set("Content-Type", p.contentType)
			dst, err = writer.CreatePart(header)
		} else {
			dst, err = writer.CreateFormField(p.field)
		}
		if err != nil {
			return nil, "", err
		}
		if _, err := dst.Write(p.data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
