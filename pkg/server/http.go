package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/destiny/pkg"
	"github.com/abennett/destiny/pkg/messages"
)

var ErrTooComplex = errors.New("notation exceeds complexity limit")

func health(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func NewMux(server *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.DefaultLogger)
	r.Use(middleware.Recoverer)
	r.Get("/health", health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/roll", server.handleRoll)
		r.Get("/complexity", server.handleComplexity)
		r.Get("/distribution", server.handleDistribution)
	})
	r.Get("/{roomName}", server.ServeHTTP)
	return r
}

func writeMsgpack(w http.ResponseWriter, status int, v any) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		slog.Error("failed marshalling response", "error", err)
		http.Error(w, "failed marshalling response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", messages.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTooComplex),
		errors.Is(err, pkg.ErrComplexityOverflow),
		errors.Is(err, pkg.ErrTooManyDice):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, pkg.ErrMalformedExpression),
		errors.Is(err, pkg.ErrDegenerateGroup),
		errors.Is(err, pkg.ErrResultOutOfRange),
		errors.Is(err, errMissingNotation):
		status = http.StatusBadRequest
	}
	writeMsgpack(w, status, messages.ErrorResponse{Error: err.Error()})
}

var errMissingNotation = errors.New("notation query parameter is required")

func notation(r *http.Request) (string, error) {
	n := r.URL.Query().Get("notation")
	if n == "" {
		return "", errMissingNotation
	}
	return n, nil
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	n, err := notation(r)
	if err != nil {
		writeError(w, err)
		return
	}
	roll, err := s.roller.Roll(n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMsgpack(w, http.StatusOK, messages.RollResponse{
		Notation:   roll.Notation,
		Expression: roll.Expression,
		Results:    roll.Results,
		Total:      roll.Total,
	})
}

func (s *Server) handleComplexity(w http.ResponseWriter, r *http.Request) {
	n, err := notation(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := pkg.Complexity(n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMsgpack(w, http.StatusOK, messages.ComplexityResponse{
		Notation:     n,
		Combinations: c,
	})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	n, err := notation(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := pkg.Complexity(n)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.cfg.MaxComplexity > 0 && c > s.cfg.MaxComplexity {
		writeError(w, fmt.Errorf("%w: %d combinations, limit %d", ErrTooComplex, c, s.cfg.MaxComplexity))
		return
	}
	d, err := s.builder.Build(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMsgpack(w, http.StatusOK, DistributionResponse(d))
}

// DistributionResponse converts a distribution to its wire form.
func DistributionResponse(d *pkg.Distribution) messages.DistributionResponse {
	stats := d.Stats()
	resp := messages.DistributionResponse{
		Notation: d.Notation,
		Total:    d.Total,
		Failed:   d.Failed,
		Mean:     stats.Mean,
		StdDev:   stats.StdDev,
	}
	for _, row := range d.Rows() {
		resp.Rows = append(resp.Rows, messages.DistributionRow(row))
	}
	return resp
}
