package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Result is the gateway's verdict for a single endpoint.
type Result struct {
	Token string
	Code  Code
}

type Code string

const (
	CodeOK Code = "ok"
	// CodePermanent marks a token the gateway will never accept again.
	CodePermanent Code = "permanent_invalid"
	// CodeTransient marks a delivery that may work next time; nothing is
	// scheduled here, the next outgoing message is the retry trigger.
	CodeTransient Code = "transient"
)

// Gateway is the external push provider.
type Gateway interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]Result, error)
}

// HTTPGateway speaks the FCM-legacy multicast shape: one POST carrying all
// tokens, one result per token in order.
type HTTPGateway struct {
	url       string
	serverKey string
	client    *http.Client
}

func NewHTTPGateway(url, serverKey string) *HTTPGateway {
	return &HTTPGateway{
		url:       url,
		serverKey: serverKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type gatewayRequest struct {
	RegistrationIDs []string            `json:"registration_ids"`
	Notification    gatewayNotification `json:"notification"`
	Data            map[string]string   `json:"data,omitempty"`
}

type gatewayNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

type gatewayResponse struct {
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (g *HTTPGateway) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]Result, error) {
	payload, err := json.Marshal(gatewayRequest{
		RegistrationIDs: tokens,
		Notification:    gatewayNotification{Title: title, Body: body, Sound: "default"},
		Data:            data,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+g.serverKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push gateway returned %s", resp.Status)
	}

	var decoded gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	results := make([]Result, len(tokens))
	for i, token := range tokens {
		results[i] = Result{Token: token, Code: CodeTransient}
		if i >= len(decoded.Results) {
			continue
		}
		switch decoded.Results[i].Error {
		case "":
			results[i].Code = CodeOK
		case "NotRegistered", "InvalidRegistration", "MismatchSenderId":
			results[i].Code = CodePermanent
		default:
			results[i].Code = CodeTransient
		}
	}
	return results, nil
}

// LogGateway reports success for everything without sending. Used when no
// gateway credentials are configured.
type LogGateway struct {
	Logger zerolog.Logger
}

func (g LogGateway) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]Result, error) {
	g.Logger.Info().Int("endpoints", len(tokens)).Str("title", title).Msg("push gateway not configured, notification dropped")
	results := make([]Result, len(tokens))
	for i, token := range tokens {
		results[i] = Result{Token: token, Code: CodeOK}
	}
	return results, nil
}
