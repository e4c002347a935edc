package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coxswain-dev/coxswain/internal/conductor"
	"github.com/coxswain-dev/coxswain/internal/transport"
)

var attachCmd = &cobra.Command{
	Use:   "attach [flags] -- <ssh-args>...",
	Short: "Open an interactive conducted session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	cond := newConductor(args)

	pty, err := transport.Start(transport.Config{
		Command: cfg.SSHCommand,
		Args:    args,
		Env:     os.Environ(),
		Output:  os.Stdout,
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

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, oldState)

		if cols, rows, err := term.GetSize(fd); err == nil {
			if err := pty.Resize(cols, rows); err != nil {
				slog.Warn("resize failed", "error", err)
			}
		}
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				pty.SendKeys(buf[:n])
			}
			if err != nil {
				if !errors.Is(err, os.ErrClosed) {
					slog.Debug("stdin closed", "error", err)
				}
				return
			}
		}
	}()

	pty.Wait()
	persistSession(cond)
	return nil
}
