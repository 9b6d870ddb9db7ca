package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const sendTimeout = 10 * time.Second

func newHTTPClient() *resty.Client {
	return resty.New().
		SetTimeout(sendTimeout).
		SetHeader("Content-Type", "application/json")
}

// postJSON posts body to url and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *resty.Client, name, url string, body any) error {
	resp, err := client.R().SetContext(ctx).SetBody(body).Post(url)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	if !resp.IsSuccess() {
		msg := resp.String()
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode(), msg)
	}
	return nil
}
