package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ogulcanaydogan/attestview/internal/hash"
	"github.com/ogulcanaydogan/attestview/internal/inspect"
	"github.com/ogulcanaydogan/attestview/internal/report"
	"github.com/ogulcanaydogan/attestview/internal/store"
)

// ociFetchFunc is a package-level variable for test injection.
var ociFetchFunc = store.FetchOCI

const maxBodyBytes = 10 * 1024 * 1024 // 10 MB

type errorBody struct {
	Error string `json:"error"`
}

type handler struct {
	cfg    Config
	logger *zap.Logger
	cache  *reportCache
	group  *singleflight.Group
}

// Handler returns the HTTP API: POST /inspect and GET /healthz.
func Handler(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		cfg:    cfg,
		logger: logger,
		cache:  newReportCache(time.Duration(cfg.CacheTTLSeconds) * time.Second),
		group:  &singleflight.Group{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /inspect", h.inspect)
	mux.Handle("GET /healthz", HealthHandler())
	return mux
}

// HealthHandler returns an HTTP handler for liveness and readiness probes.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func (h *handler) inspect(w http.ResponseWriter, r *http.Request) {
	opts := h.cfg.Inspect
	opts.Logger = h.logger
	q := r.URL.Query()
	if flag(q.Get("schema")) {
		opts.SchemaCheck = true
	}
	if flag(q.Get("certs")) {
		opts.Certificates = true
	}

	var body []byte
	if ref := q.Get("oci"); ref != "" {
		raw, err := ociFetchFunc(ref)
		if err != nil {
			h.logger.Warn("oci fetch failed", zap.String("ref", ref), zap.Error(err))
			writeJSONError(w, http.StatusBadGateway, fmt.Errorf("fetch %s: %w", ref, err))
			return
		}
		body = raw
	} else {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
				return
			}
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
			return
		}
		body = raw
	}

	key := cacheKey(body, opts)
	if cached, ok := h.cache.get(key, time.Now()); ok {
		w.Header().Set("X-Cache", "hit")
		writeRaw(w, http.StatusOK, cached)
		return
	}

	v, err, shared := h.group.Do(key, func() (any, error) {
		if cached, ok := h.cache.get(key, time.Now()); ok {
			return cached, nil
		}
		rep, err := inspect.Run(body, opts)
		if err != nil {
			return nil, err
		}
		out, err := report.BuildJSON(rep)
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		h.cache.put(key, out, time.Now())
		return out, nil
	})
	if err != nil {
		if errors.Is(err, inspect.ErrInvalidJSON) {
			writeJSONError(w, http.StatusBadRequest, inspect.ErrInvalidJSON)
			return
		}
		h.logger.Error("inspection failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Debug("inspected request", zap.Int("bytes", len(body)), zap.Bool("shared", shared))
	w.Header().Set("X-Cache", "miss")
	writeRaw(w, http.StatusOK, v.([]byte))
}

// cacheKey covers the body and every option that changes the report.
func cacheKey(body []byte, opts inspect.Options) string {
	return fmt.Sprintf("%s|jsonc=%t|depth=%d|schema=%t|certs=%t",
		hash.DigestBytes(body), opts.JSONC, opts.MaxDepth, opts.SchemaCheck, opts.Certificates)
}

func flag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
}

// Serve runs the server until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
