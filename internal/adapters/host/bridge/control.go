package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bnema/tabflow/internal/domain"
)

const controlRequestTimeout = 3 * time.Second

// RequestFlip asks a running tabflow daemon to flip the given window. A zero
// window id means "whichever window holds the most recent tab".
func RequestFlip(ctx context.Context, baseURL string, windowID domain.WindowID) error {
	body, err := json.Marshal(controlCommand{Command: "flip", WindowID: int64(windowID)})
	if err != nil {
		return fmt.Errorf("encode flip command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, controlRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/control", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build flip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach tabflow daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("daemon rejected flip: %s (%s)", resp.Status, bytes.TrimSpace(msg))
	}

	return nil
}
