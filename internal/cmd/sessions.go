package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coxswain-dev/coxswain/internal/conductor"
	"github.com/coxswain-dev/coxswain/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewFileStore(storage.DefaultBaseDir())
		if err != nil {
			return err
		}
		ids, err := store.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			blob, err := store.Load(id)
			if err != nil {
				fmt.Printf("%s\t(unreadable: %v)\n", id, err)
				continue
			}
			cond, err := conductor.FromJSON(blob)
			if err != nil {
				fmt.Printf("%s\t(corrupt: %v)\n", id, err)
				continue
			}
			fmt.Printf("%s\tdepth=%d framed_pid=%d\n", id, cond.Depth(), cond.FramedPID())
		}
		return nil
	},
}

var sessionsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a persisted session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewFileStore(storage.DefaultBaseDir())
		if err != nil {
			return err
		}
		return store.Delete(args[0])
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRemoveCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// persistSession saves the conductor tree after a session ends so the
// next attach can recover the remote framer.
func persistSession(cond *conductor.Conductor) {
	store, err := storage.NewFileStore(storage.DefaultBaseDir())
	if err != nil {
		return
	}
	blob, err := cond.JSONValue()
	if err != nil {
		return
	}
	_ = store.Save(cond.ClientUniqueID(), blob)
}
