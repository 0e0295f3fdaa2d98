package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"onebridge/internal/constants"
	"onebridge/internal/event"
	"onebridge/internal/logger"
	"onebridge/internal/quickop"
	"onebridge/pkg/circuitbreaker"
	"onebridge/pkg/metrics"
	"onebridge/pkg/tracing"
)

const maxWebhookResponse = 1 << 20

type webhook struct {
	url     string
	selfID  string
	secret  []byte
	client  *http.Client
	breaker *circuitbreaker.Wrapper
	quick   QuickApplier
	logger  logger.Logger
}

func newWebhook(url string, cfg Config, quick QuickApplier, log logger.Logger) *webhook {
	w := &webhook{
		url:    url,
		selfID: strconv.FormatInt(cfg.SelfID, 10),
		client: &http.Client{Timeout: cfg.Timeout},
		quick:  quick,
		logger: log,
	}
	if cfg.Secret != "" {
		w.secret = []byte(cfg.Secret)
	}
	if cfg.Breaker != nil {
		bc := *cfg.Breaker
		bc.Name = "webhook:" + url
		w.breaker = circuitbreaker.NewWrapper(bc)
	}
	return w
}

// Sign returns the X-Signature value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func (w *webhook) post(ctx context.Context, ev event.Event, payload []byte) {
	start := time.Now()

	var reply []byte
	send := func() error {
		var err error
		reply, err = w.send(ctx, payload)
		return err
	}

	var err error
	if w.breaker != nil {
		err = w.breaker.Execute(ctx, send)
	} else {
		err = send()
	}
	metrics.ObserveWebhookDuration(time.Since(start))

	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("failed").Inc()
		w.logger.ErrorwCtx(ctx, "Webhook post failed",
			"url", w.url,
			"post_type", ev.Kind(),
			"error", err,
		)
		return
	}
	metrics.WebhookRequestsTotal.WithLabelValues("ok").Inc()

	if len(bytes.TrimSpace(reply)) == 0 || w.quick == nil {
		return
	}
	op, err := quickop.ParseOperation(reply)
	if err != nil {
		w.logger.WarnwCtx(ctx, "Ignoring webhook reply",
			"url", w.url,
			"error", err,
		)
		return
	}
	w.quick.Apply(ctx, ev, op)
}

// send posts payload and returns the response body of a 2xx answer.
func (w *webhook) send(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.HeaderSelfID, w.selfID)
	req.Header.Set(constants.HeaderUserAgent, constants.UserAgent)
	if w.secret != nil {
		req.Header.Set(constants.HeaderSignature, Sign(w.secret, payload))
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
