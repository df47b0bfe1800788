package gobayeux_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dkmadigan/gobayeux"
)

type roundTripFn func(*http.Request) (*http.Response, error)

func (fn roundTripFn) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}

func ExampleWithSlogLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey, "error", "delay":
				return slog.Attr{}
			}
			return a
		},
	}))

	handler := roundTripFn(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     http.StatusText(http.StatusOK),
		}, nil
	})

	client, err := gobayeux.NewClient("http://127.0.0.1:9876",
		gobayeux.WithSlogLogger(logger),
		gobayeux.WithHTTPTransport(handler),
		gobayeux.WithMaxRetries(1),
		gobayeux.WithBackoff(gobayeux.BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond}),
	)
	if err != nil {
		panic(err)
	}

	errs := client.Start(context.Background())
	err = <-errs

	var exhausted gobayeux.RetriesExhaustedError
	fmt.Println(errors.As(err, &exhausted), exhausted.Attempts)
	// Output:
	// level=WARN msg="request failed, backing off" at=loop attempt=1
	// level=ERROR msg="session terminated"
	// true 2
}
