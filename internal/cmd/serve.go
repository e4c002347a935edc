package cmd

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/coxswain-dev/coxswain/internal/api"
	"github.com/coxswain-dev/coxswain/internal/conductor"
	"github.com/coxswain-dev/coxswain/internal/mirror"
	"github.com/coxswain-dev/coxswain/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags] -- <ssh-args>...",
	Short: "Conduct a headless session and expose it over HTTP",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cond := newConductor(args)

	pty, err := transport.Start(transport.Config{
		Command: cfg.SSHCommand,
		Args:    args,
		Env:     os.Environ(),
		OnRecovery: func(rec *conductor.Recovery) {
			slog.Info("session recovered", "pid", rec.FramedPID, "dcs_id", rec.DCSID)
		},
		Logger: slog.Default(),
	}, cond)
	if err != nil {
		return err
	}
	defer pty.Close()

	cond.Start()

	screens := func(dcsID string) *mirror.Screen {
		if dcsID == cond.DCSID() {
			return pty.Screen()
		}
		return nil
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	api.NewHandler(conductor.DefaultRegistry, screens, slog.Default()).Mount(r)

	slog.Info("serving", "addr", cfg.Listen, "session", cond.DCSID())
	return http.ListenAndServe(cfg.Listen, r)
}
