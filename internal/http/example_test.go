package http_test

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	httpserver "github.com/fyrsmithlabs/apreview/internal/http"
	"github.com/fyrsmithlabs/apreview/internal/logging"
	"github.com/fyrsmithlabs/apreview/internal/questionnaire"
	"github.com/fyrsmithlabs/apreview/internal/review"
	"github.com/fyrsmithlabs/apreview/internal/session"
	"github.com/fyrsmithlabs/apreview/internal/sink"
)

type discard struct{}

func (discard) Append(context.Context, *answers.Set) error { return nil }

func (discard) Contains(context.Context, string) (bool, error) { return false, nil }

// ExampleServer demonstrates how to wire and start the HTTP server.
func ExampleServer() {
	def, err := questionnaire.Default()
	if err != nil {
		panic(err)
	}

	webhook := sink.NewWebhook("https://hooks.example.com/reviews", 30*time.Second)
	svc, err := review.NewService(def, session.NewMemoryStore(2*time.Hour), discard{}, webhook)
	if err != nil {
		panic(err)
	}

	cfg := &httpserver.Config{
		Host:      "localhost",
		Port:      8080,
		RateLimit: 10,
		RateBurst: 20,
		BodyLimit: "1M",
	}

	server, err := httpserver.NewServer(svc, logging.NewNop(), cfg)
	if err != nil {
		panic(err)
	}

	go func() {
		if err := server.Start(); err != nil {
			fmt.Printf("server stopped: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Printf("shutdown error: %v\n", err)
	}
}
