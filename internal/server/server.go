// Package server exposes the token gallery over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"conway-token-lab/internal/assets"
	"conway-token-lab/internal/chain"
	"conway-token-lab/internal/datauri"
	"conway-token-lab/internal/gallery"
	"conway-token-lab/internal/metadata"
	"conway-token-lab/internal/observability"
	"conway-token-lab/internal/ownership"
)

const shutdownTimeout = 10 * time.Second

// Gallery is the read side of gallery.Service.
type Gallery interface {
	Owned(ctx context.Context, owner common.Address) ([]uint64, error)
	Token(ctx context.Context, id uint64) (*gallery.Token, error)
}

// Server serves the gallery API.
type Server struct {
	gallery Gallery
	logger  *zap.Logger
	mux     *http.ServeMux
}

// New creates a Server. A nil logger disables logging.
func New(g Gallery, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{gallery: g, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", observability.Handler())
	s.mux.HandleFunc("GET /owners/{address}/tokens", s.handleOwnerTokens)
	s.mux.HandleFunc("GET /tokens/{id}", s.handleToken)
	s.mux.HandleFunc("GET /tokens/{id}/image", s.handleAsset(func(t *gallery.Token) *assets.DecodedAsset { return t.Image }))
	s.mux.HandleFunc("GET /tokens/{id}/animation", s.handleAsset(func(t *gallery.Token) *assets.DecodedAsset { return t.Animation }))
	return s
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Run listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// OwnerTokensResponse is the JSON response for /owners/{address}/tokens.
type OwnerTokensResponse struct {
	Owner    string   `json:"owner"`
	Balance  int      `json:"balance"`
	TokenIDs []uint64 `json:"token_ids"`
}

func (s *Server) handleOwnerTokens(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address "+strconv.Quote(raw))
		return
	}
	owner := common.HexToAddress(raw)

	ids, err := s.gallery.Owned(r.Context(), owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OwnerTokensResponse{
		Owner:    owner.Hex(),
		Balance:  len(ids),
		TokenIDs: ids,
	})
}

// TokenResponse is the JSON response for /tokens/{id}.
type TokenResponse struct {
	ID            uint64          `json:"id"`
	Metadata      json.RawMessage `json:"metadata"`
	ImageMIME     string          `json:"image_mime"`
	AnimationMIME string          `json:"animation_mime"`
	ImageURL      string          `json:"image_url"`
	AnimationURL  string          `json:"animation_url"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.token(w, r)
	if !ok {
		return
	}

	meta, err := tok.Metadata.MarshalJSON()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	base := "/tokens/" + strconv.FormatUint(tok.ID, 10)
	writeJSON(w, http.StatusOK, TokenResponse{
		ID:            tok.ID,
		Metadata:      meta,
		ImageMIME:     tok.Image.MIME,
		AnimationMIME: tok.Animation.MIME,
		ImageURL:      base + "/image",
		AnimationURL:  base + "/animation",
	})
}

func (s *Server) handleAsset(pick func(*gallery.Token) *assets.DecodedAsset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := s.token(w, r)
		if !ok {
			return
		}
		asset := pick(tok)

		// Asset bytes come from the chain; keep them away from this origin.
		w.Header().Set("Content-Security-Policy", "sandbox allow-scripts")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Type", asset.MIME)
		w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
		w.WriteHeader(http.StatusOK)
		w.Write(asset.Data)
	}
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) (*gallery.Token, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id "+strconv.Quote(raw))
		return nil, false
	}

	tok, err := s.gallery.Token(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return tok, true
}

// statusFor maps a gallery error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrNonexistentToken):
		return http.StatusNotFound
	case errors.Is(err, gallery.ErrBalanceChanged):
		return http.StatusConflict
	case errors.Is(err, ownership.ErrEnumerationIncomplete):
		return http.StatusServiceUnavailable
	case errors.Is(err, datauri.ErrMalformedDataURI),
		errors.Is(err, datauri.ErrInvalidBase64),
		errors.Is(err, metadata.ErrInvalidMetadataJSON),
		errors.Is(err, metadata.ErrMissingRequiredField):
		return http.StatusUnprocessableEntity
	case chain.IsProviderError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
