package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dealerdesk/wainbox/internal/core"
)

// Sender is the outbound provider surface the send coordinator depends
// on. Each call returns the provider-assigned message id on success; any
// failure surfaces as *core.ProviderSendError.
type Sender interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) (string, error)
	SendTemplate(ctx context.Context, phoneNumberID, to, templateName, language string, bodyVars []string) (string, error)
	SendFlow(ctx context.Context, phoneNumberID, to, flowID, ctaText, bodyText string) (string, error)
}

// Client talks to the Cloud API Graph endpoint.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) SendText(ctx context.Context, phoneNumberID, to, body string) (string, error) {
	payload := sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             TextContent{Body: body},
	}
	return c.post(ctx, phoneNumberID, payload)
}

func (c *Client) SendTemplate(ctx context.Context, phoneNumberID, to, templateName, language string, bodyVars []string) (string, error) {
	payload := sendTemplateRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: Template{
			Name:     templateName,
			Language: TemplateLanguage{Code: language},
		},
	}
	if len(bodyVars) > 0 {
		params := make([]TemplateParameter, 0, len(bodyVars))
		for _, v := range bodyVars {
			params = append(params, TemplateParameter{Type: "text", Text: v})
		}
		payload.Template.Components = []TemplateComponent{
			{Type: "body", Parameters: params},
		}
	}
	return c.post(ctx, phoneNumberID, payload)
}

func (c *Client) SendFlow(ctx context.Context, phoneNumberID, to, flowID, ctaText, bodyText string) (string, error) {
	payload := sendFlowRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive: Interactive{
			Type: "flow",
			Body: InteractiveBody{Text: bodyText},
			Action: &InteractiveAction{
				Name: "flow",
				Parameters: FlowParameters{
					FlowMessageVersion: "3",
					FlowID:             flowID,
					FlowCTA:            ctaText,
				},
			},
		},
	}
	return c.post(ctx, phoneNumberID, payload)
}

func (c *Client) post(ctx context.Context, phoneNumberID string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &core.ProviderSendError{Err: err}
	}
	defer resp.Body.Close()

	// Error bodies are capped: enough for the client to render a retry
	// affordance, not enough to blow up a log line.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", &core.ProviderSendError{HTTPStatus: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &core.ProviderSendError{HTTPStatus: resp.StatusCode, Body: string(respBody)}
	}

	var parsed SendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &core.ProviderSendError{HTTPStatus: resp.StatusCode, Body: string(respBody), Err: err}
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", &core.ProviderSendError{HTTPStatus: resp.StatusCode, Body: string(respBody), Err: fmt.Errorf("response missing message id")}
	}

	return parsed.Messages[0].ID, nil
}
