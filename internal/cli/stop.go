package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qvm-dev/qvm/internal/vm"
)

func newStopCmd() *cobra.Command {
	var (
		force   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a running VM",
		Long: `Send SIGTERM to the VM engine and wait for it to exit. With --force
the engine is killed if it is still running after the grace period.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			mgr, err := newManager()
			if err != nil {
				return err
			}
			res, err := mgr.Stop(cmd.Context(), name, vm.StopOptions{Force: force, Timeout: timeout})

			out := cmd.OutOrStdout()
			switch {
			case errors.Is(err, vm.ErrNotRunning):
				fmt.Fprintf(out, "VM %s is not running\n", name)
				return nil
			case err != nil:
				return err
			case res.StaleRemoved:
				fmt.Fprintf(out, "VM %s was not running (removed stale pid record)\n", name)
			case res.Killed:
				fmt.Fprintf(out, "Killed VM %s (pid %d)\n", name, res.PID)
			default:
				fmt.Fprintf(out, "Stopped VM %s (pid %d)\n", name, res.PID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "kill the VM if it does not stop within the grace period")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "grace period (default from --stop-timeout)")

	return cmd
}
