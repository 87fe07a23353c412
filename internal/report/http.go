package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vettalabs/vetta-core/internal/config"
)

type httpDeliverer struct {
	endpoint string
	timeout  time.Duration
}

// NewHTTPDeliverer posts the report as JSON to a delivery endpoint,
// typically a mail gateway.
func NewHTTPDeliverer(cfg config.ReportConfig) Deliverer {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpDeliverer{endpoint: cfg.Endpoint, timeout: timeout}
}

func (d *httpDeliverer) Deliver(ctx context.Context, rep Report) error {
	if rep.Body == "" {
		rep.Body = Render(rep)
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("report endpoint returned status %s", resp.Status)
	}
	return nil
}
