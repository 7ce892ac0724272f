package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/session"
	"github.com/sells-group/roster-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the validation session API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collab, err := initCollaborator(cfg)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(session.NewDriver(st, collab), st, cfg.Server.AllowedOrigins, cfg.Pipeline.OutputPath),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return serveUntilDone(ctx, srv)
	},
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
	})
	return g.Wait()
}

type startRequest struct {
	FilePath   string `json:"file_path"`
	OutputPath string `json:"output_path"`
	SessionID  string `json:"session_id"`
}

// buildRouter wires the session API onto a chi router.
// Requests without an output_path write to defaultOutput.
func buildRouter(driver *session.Driver, st store.Store, origins []string, defaultOutput string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/validation/sessions", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body startRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.FilePath == "" {
				writeError(w, http.StatusBadRequest, "file_path is required")
				return
			}
			if body.OutputPath == "" {
				body.OutputPath = defaultOutput
			}

			id, err := driver.Start(req.Context(), session.StartRequest{
				RosterPath: body.FilePath,
				OutputPath: body.OutputPath,
				SessionID:  body.SessionID,
			})
			switch {
			case eris.Is(err, session.ErrRunActive):
				writeError(w, http.StatusConflict, err.Error())
				return
			case err != nil:
				zap.L().Error("start session failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to start session")
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "status": string(model.SessionInProgress)})
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			sessions, err := st.ListSessions(req.Context(), limit)
			if err != nil {
				zap.L().Error("list sessions failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to list sessions")
				return
			}
			if sessions == nil {
				sessions = []model.Session{}
			}
			writeJSON(w, http.StatusOK, sessions)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			sess, err := st.GetSession(req.Context(), chi.URLParam(req, "id"))
			switch {
			case eris.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, "session not found")
				return
			case err != nil:
				zap.L().Error("get session failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to load session")
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})
	})

	r.Get("/api/providers", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		providers, err := st.ListProviders(req.Context(), store.ProviderFilter{
			Status:    model.Status(q.Get("status")),
			SessionID: q.Get("session_id"),
			Hospital:  q.Get("hospital"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			zap.L().Error("list providers failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list providers")
			return
		}
		if providers == nil {
			providers = []model.Provider{}
		}
		writeJSON(w, http.StatusOK, providers)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
