package main

import (
	// stdlib
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	// internal
	"github.com/Robogera/headcount/pkg/config"
	"github.com/Robogera/headcount/pkg/indexed"
	"github.com/Robogera/headcount/pkg/synapse"

	// external
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hybridgroup/mjpeg"
)

func newRouter(output_stream http.Handler, latest *atomic.Pointer[synapse.Message]) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Handle("/", output_stream)
	router.Get("/counts", func(w http.ResponseWriter, r *http.Request) {
		message := latest.Load()
		if message == nil {
			http.Error(w, "No frames processed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(message)
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return router
}

func webplayer(
	ctx context.Context,
	parent_logger *slog.Logger,
	cfg *config.ConfigFile,
	frames_chan <-chan indexed.Indexed[[]byte],
	messages_chan <-chan indexed.Indexed[*synapse.Message],
) error {

	logger := parent_logger.With("coroutine", "webplayer")

	output_stream := mjpeg.NewStream()
	var latest atomic.Pointer[synapse.Message]

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Webserver.Port),
		Handler:      newRouter(output_stream, &latest),
		ReadTimeout:  time.Duration(cfg.Webserver.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Webserver.WriteTimeoutSec) * time.Second,
	}

	err_chan := make(chan error, 1)

	go func() {
		err_chan <- server.ListenAndServe()
	}()
	defer func() {
		shutdown_context, cancel := context.WithTimeout(
			context.Background(),
			time.Second*time.Duration(cfg.Webserver.ShutdownTimeoutSec))
		defer cancel()
		shutdown_initiated_timestamp := time.Now()
		err := server.Shutdown(shutdown_context)
		logger.Info(
			"Shut down",
			"shutdown time (sec)", time.Since(shutdown_initiated_timestamp).Seconds(),
			"error", err)
	}()

	logger.Info("Started", "port", cfg.Webserver.Port)

	var last_frame uint64

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cancelled by context", "timeout (sec)", cfg.Webserver.ShutdownTimeoutSec, "last frame", last_frame)
			return context.Canceled
		case err := <-err_chan:
			logger.Error("Error", "port", cfg.Webserver.Port, "error", err)
			return err
		case frame := <-frames_chan:
			output_stream.UpdateJPEG(frame.Value())
			last_frame = frame.Id()
		case message := <-messages_chan:
			latest.Store(message.Value())
		}
	}
}
