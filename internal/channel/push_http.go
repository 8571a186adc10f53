package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultPushTimeout = 5 * time.Second

// HTTPPush sends notifications to an FCM-style HTTP endpoint.
type HTTPPush struct {
	endpoint  string
	serverKey string
	timeout   time.Duration
}

// NewHTTPPush builds a push adapter. A non-positive timeout falls back to 5s.
func NewHTTPPush(endpoint, serverKey string, timeout time.Duration) *HTTPPush {
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	return &HTTPPush{endpoint: endpoint, serverKey: serverKey, timeout: timeout}
}

type pushRequest struct {
	To           string            `json:"to"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

var invalidTokenErrors = map[string]struct{}{
	"NotRegistered":       {},
	"InvalidRegistration": {},
	"UNREGISTERED":        {},
	"MissingRegistration": {},
}

func (p *HTTPPush) Send(ctx context.Context, token string, n Notification, data map[string]string) (PushOutcome, error) {
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return PushTransientFailure, context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return PushTransientFailure, err
	}

	agent := fiber.Post(p.endpoint)
	agent.Set(fiber.HeaderAuthorization, "key="+p.serverKey)
	agent.JSON(pushRequest{To: token, Notification: n, Data: data})
	agent.Timeout(timeout)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return PushTransientFailure, fmt.Errorf("push request: %w", errors.Join(errs...))
	}

	switch {
	case status == fiber.StatusNotFound || status == fiber.StatusGone:
		return PushInvalidToken, nil
	case status == fiber.StatusOK:
		if reason, ok := invalidTokenReason(body); ok {
			return PushInvalidToken, fmt.Errorf("push rejected token: %s", reason)
		}
		return PushDelivered, nil
	default:
		return PushTransientFailure, fmt.Errorf("push endpoint returned %d", status)
	}
}

func invalidTokenReason(body []byte) (string, bool) {
	var resp pushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	for _, r := range resp.Results {
		if _, ok := invalidTokenErrors[strings.TrimSpace(r.Error)]; ok {
			return r.Error, true
		}
	}
	return "", false
}
