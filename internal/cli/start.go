package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qvm-dev/qvm/internal/qemu"
	"github.com/qvm-dev/qvm/internal/vm"
	"github.com/qvm-dev/qvm/pkg/api"
)

func newStartCmd() *cobra.Command {
	var (
		iso     string
		display string
		console string
		daemon  bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "start NAME",
		Short: "Start a VM",
		Long: `Start the VM engine. By default qvm stays in the foreground until the
VM exits; with --daemon it detaches and returns once the engine is up.
--iso, --display and --console apply to this run only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var opts vm.StartOptions
			opts.Daemon = daemon
			opts.DryRun = dryRun

			if iso != "" {
				abs, err := filepath.Abs(iso)
				if err != nil {
					return err
				}
				opts.ISO = abs
			}
			if display != "" {
				mode, err := api.ParseDisplayMode(display)
				if err != nil {
					return err
				}
				opts.Display = mode
			}
			c, err := qemu.ParseConsole(console)
			if err != nil {
				return err
			}
			opts.Console = c

			mgr, err := newManager()
			if err != nil {
				return err
			}
			if !daemon && !dryRun {
				// Ctrl-C reaches the engine through the terminal's process
				// group; qvm stays alive to clear the pid record after it exits.
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt)
				defer signal.Stop(sig)
			}
			res, err := mgr.Start(cmd.Context(), name, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case dryRun:
				fmt.Fprintln(out, res.Invocation.String())
			case daemon:
				fmt.Fprintf(out, "Started VM %s (pid %d)\n", name, res.PID)
			default:
				fmt.Fprintf(out, "VM %s exited\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&iso, "iso", "", "attach an ISO image and boot from it")
	cmd.Flags().StringVar(&display, "display", "", "override the display mode for this run: cocoa|vnc|spice|headless")
	cmd.Flags().StringVar(&console, "console", string(qemu.ConsoleGUI), "console: gui|serial")
	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "run the VM in the background")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the engine command line and exit")

	return cmd
}
