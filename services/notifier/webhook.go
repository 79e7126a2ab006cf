// Package notifysvc posts operational messages to the staff chat channel via
// an incoming webhook. Failures are logged and swallowed: notifications never
// abort the state transition they report on.
package notifysvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/suliportal/suliportal/core"
)

type webhookNotifier struct {
	url    string
	client *http.Client
	logger core.Logger
}

var _ core.Notifier = (*webhookNotifier)(nil)

func NewWebhookNotifier(conf *core.Config, logger core.Logger) *webhookNotifier {
	return &webhookNotifier{
		url:    conf.OpsWebhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type webhookPayload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	IsError bool   `json:"is_error"`
}

func (svc *webhookNotifier) SendOperationalMessage(title, body string, isError bool) {
	if svc.url == "" {
		svc.logger.Info(fmt.Sprintf("ops message (no webhook configured): %s - %s", title, body))
		return
	}
	go svc.post(webhookPayload{Title: title, Body: body, IsError: isError})
}

func (svc *webhookNotifier) post(payload webhookPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("encoding ops message: %v", err), err)
		return
	}
	res, err := svc.client.Post(svc.url, "application/json", bytes.NewReader(data))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("posting ops message: %v", err), err)
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("posting ops message - status: %d", res.StatusCode))
	}
}

type loggerNotifier struct {
	logger core.Logger
}

// NewLoggerNotifier returns a Notifier that only logs. DEV/test backend.
func NewLoggerNotifier(logger core.Logger) *loggerNotifier {
	return &loggerNotifier{logger: logger}
}

func (svc *loggerNotifier) SendOperationalMessage(title, body string, isError bool) {
	if isError {
		svc.logger.Error(fmt.Sprintf("ops: %s - %s", title, body))
		return
	}
	svc.logger.Info(fmt.Sprintf("ops: %s - %s", title, body))
}
