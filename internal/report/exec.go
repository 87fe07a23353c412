package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/vettalabs/vetta-core/internal/config"
)

type execDeliverer struct {
	cmd []string
}

// NewExecDeliverer pipes the report JSON into a local command, e.g. a
// sendmail wrapper.
func NewExecDeliverer(cfg config.ReportConfig) (Deliverer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse report command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("report command empty")
	}
	return &execDeliverer{cmd: args}, nil
}

func (d *execDeliverer) Deliver(ctx context.Context, rep Report) error {
	if rep.Body == "" {
		rep.Body = Render(rep)
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		return err
	}

	base := d.cmd[0]
	args := append([]string{}, d.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("report command failed: %w: %s", err, bytes.TrimSpace(output))
	}
	return nil
}
