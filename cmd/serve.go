package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for classification and resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(env *engineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	api := &apiServer{env: env}

	r.Get("/health", api.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/classify", api.classify)
		r.Post("/resolve", api.resolve)
		r.Get("/agencies", api.listAgencies)
		r.Post("/agencies", api.upsertAgency)
		r.Patch("/agencies/{id}/priority", api.setAgencyPriority)
		r.Post("/sources", api.registerSource)
	})
	return r
}

type apiServer struct {
	env *engineEnv
}

func (s *apiServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) classify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Product string `json:"product"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Product == "" {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}

	candidates := s.env.Orch.Classify(r.Context(), req.Product)
	type entry struct {
		model.Candidate
		Tariff model.TariffEstimate `json:"tariff"`
	}
	out := make([]entry, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, entry{Candidate: cand, Tariff: s.env.Orch.TariffEstimate(cand.Code)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": out})
}

func (s *apiServer) resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string `json:"code"`
		Product string `json:"product"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" && req.Product == "" {
		writeError(w, http.StatusBadRequest, "code or product is required")
		return
	}

	report := s.env.Orch.Resolve(r.Context(), req.Code, req.Product)
	writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) listAgencies(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code != "" {
		ranked, err := s.env.Agencies.For(r.Context(), code, 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agencies": ranked})
		return
	}

	all, err := s.env.Agencies.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agencies": all})
}

func (s *apiServer) upsertAgency(w http.ResponseWriter, r *http.Request) {
	var agency model.Agency
	if err := json.NewDecoder(r.Body).Decode(&agency); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agency.Active = true

	if err := s.env.Agencies.Upsert(r.Context(), agency); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": agency.ID})
}

func (s *apiServer) setAgencyPriority(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Priority int `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.env.Agencies.SetPriority(r.Context(), id, req.Priority); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

func (s *apiServer) registerSource(w http.ResponseWriter, r *http.Request) {
	var src model.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	src.Active = true

	if err := s.env.Sources.Register(r.Context(), src); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok", "name": src.Name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
