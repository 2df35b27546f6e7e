// Package server is the stream backend: it accepts queries and streams the
// agent's response for each of them as server-sent events.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/cardstream/pkg/helpers"
	"github.com/go-go-golems/cardstream/pkg/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	store *QueryStore
	agent *Agent
}

func New(agent *Agent) *Server {
	return &Server{
		store: NewQueryStore(),
		agent: agent,
	}
}

type statusResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/init", s.handleInit)
	mux.HandleFunc("GET /chat/stream/{id}", s.handleStream)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
	})
	return withRequestID(withCORS(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", addr).Msg("stream server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down stream server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	var req transport.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid request body"})
		return
	}
	if req.ID == uuid.Nil || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "id and query are required"})
		return
	}
	if err := s.store.Put(req.ID, req.Query); err != nil {
		writeJSON(w, http.StatusConflict, statusResponse{Status: "error", Message: err.Error()})
		return
	}

	logger.Debug().Str("thread_id", req.ID.String()).Str("query", req.Query).Msg("query submitted")
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", ID: req.ID.String()})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid id"})
		return
	}
	query, ok := s.store.Take(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Message: "Query not found"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(data string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return errors.Wrap(err, "could not write event")
		}
		flusher.Flush()
		return nil
	}

	chunks := 0
	err = s.agent.Respond(ctx, query, func(chunk string) error {
		data, err := encodeChunk(chunk)
		if err != nil {
			return err
		}
		chunks++
		return send(data)
	})
	if err != nil {
		// closing without the sentinel tells the client the stream failed
		logger.Warn().Err(err).Str("thread_id", id.String()).Int("chunks", chunks).Msg("response stream aborted")
		return
	}

	if err := send(transport.EndSentinel); err != nil {
		logger.Debug().Err(err).Str("thread_id", id.String()).Msg("client left before the end of the stream")
		return
	}
	logger.Debug().Str("thread_id", id.String()).Int("chunks", chunks).Msg("response streamed")
}

// encodeChunk encodes a chunk as a JSON string. Markers stay readable on the
// wire because HTML escaping is off.
func encodeChunk(chunk string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(chunk); err != nil {
		return "", errors.Wrap(err, "could not encode chunk")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("could not write response")
	}
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = helpers.NewRequestID()
		}
		w.Header().Set("X-Request-Id", requestID)
		ctx := helpers.ContextWithRequestID(r.Context(), requestID)
		zerolog.Ctx(ctx).Trace().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
