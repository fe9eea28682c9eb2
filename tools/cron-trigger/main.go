// Command cron-trigger runs one dispatch sweep on the scheduler service. It is
// meant for platforms that deliver due messages from an external scheduler
// instead of the in-process worker (RUNNER_INTERVAL=0).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptflow/libs/config"
)

func main() {
	config.LoadDotEnv()

	var (
		baseURL   = flag.String("base-url", config.String("SCHEDULER_URL", "http://localhost:8087"), "scheduler service base url")
		secret    = flag.String("secret", config.String("CRON_SECRET", ""), "bearer token expected by the cron endpoint")
		batchSize = flag.Int("batch-size", 0, "jobs per sweep (0 uses the service default)")
		timeout   = flag.Duration("timeout", 55*time.Second, "request timeout")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("CRON_SECRET is required")
	}

	url := strings.TrimRight(*baseURL, "/") + "/api/v1/cron/run-due-jobs"
	if *batchSize > 0 {
		url += fmt.Sprintf("?batch_size=%d", *batchSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+*secret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Printf("status=%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
