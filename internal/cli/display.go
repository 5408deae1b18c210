package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qvm-dev/qvm/internal/vm"
	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

// displayFlags are the per-mode display settings shared by create and
// set-display. Only flags given on the command line end up in the update.
type displayFlags struct {
	useUnix          bool
	sock             string
	host             string
	displayNum       uint8
	addr             string
	port             uint16
	disableTicketing bool
}

func (f *displayFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.useUnix, "unix", false, "listen on a unix socket in the VM directory (vnc, spice)")
	cmd.Flags().StringVar(&f.sock, "sock", "", "unix socket path, relative to the VM directory (vnc, spice)")
	cmd.Flags().StringVar(&f.host, "host", "", "listen host (vnc)")
	cmd.Flags().Uint8Var(&f.displayNum, "display-num", 0, "display number, port 5900+N (vnc)")
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (spice)")
	cmd.Flags().Uint16Var(&f.port, "port", 0, "listen port (spice)")
	cmd.Flags().BoolVar(&f.disableTicketing, "disable-ticketing", false, "allow clients without a password (spice)")
}

func (f *displayFlags) update(cmd *cobra.Command, mode api.DisplayMode) vmconfig.DisplayUpdate {
	u := vmconfig.DisplayUpdate{Mode: mode}
	flags := cmd.Flags()
	if flags.Changed("unix") {
		u.UseUnix = &f.useUnix
	}
	if flags.Changed("sock") {
		u.Sock = &f.sock
	}
	if flags.Changed("host") {
		u.Host = &f.host
	}
	if flags.Changed("display-num") {
		u.Display = &f.displayNum
	}
	if flags.Changed("addr") {
		u.Addr = &f.addr
	}
	if flags.Changed("port") {
		u.Port = &f.port
	}
	if flags.Changed("disable-ticketing") {
		u.DisableTicketing = &f.disableTicketing
	}
	return u
}

func newSetDisplayCmd() *cobra.Command {
	var df displayFlags

	cmd := &cobra.Command{
		Use:   "set-display NAME MODE",
		Short: "Change the display mode of a VM",
		Long: `Change the persisted display mode: cocoa, vnc, spice or headless.
Settings not given on the command line keep their current value, or the
mode default when the mode changes. A running VM picks up the change on
its next start.`,
		Example: `  qvm set-display dev vnc --unix
  qvm set-display dev spice --addr 0.0.0.0 --port 5931
  qvm set-display dev headless`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			mode, err := api.ParseDisplayMode(args[1])
			if err != nil {
				return err
			}

			mgr, err := newManager()
			if err != nil {
				return err
			}
			res, err := mgr.SetDisplay(cmd.Context(), name, df.update(cmd, mode))
			if err != nil {
				return err
			}
			printSetResult(cmd, name, "display", describeDisplay(res.Config.Display), res)
			return nil
		},
	}

	df.register(cmd)

	return cmd
}

func newSetNetworkCmd() *cobra.Command {
	var (
		bridgeIf      string
		forwards      []string
		clearForwards bool
	)

	cmd := &cobra.Command{
		Use:   "set-network NAME MODE",
		Short: "Change the network mode of a VM",
		Long: `Change the persisted network mode: vmnet-shared, vmnet-bridged or
user. Port forwards are kept across mode changes but only take effect
in user mode.`,
		Example: `  qvm set-network dev vmnet-bridged --bridge-if en1
  qvm set-network dev user --forward ssh=tcp:2222:22`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			mode, err := api.ParseNetworkMode(args[1])
			if err != nil {
				return err
			}
			fwds, err := parseForwards(forwards)
			if err != nil {
				return err
			}

			mgr, err := newManager()
			if err != nil {
				return err
			}
			res, err := mgr.SetNetwork(cmd.Context(), name, vmconfig.NetworkUpdate{
				Mode:          mode,
				BridgeIf:      bridgeIf,
				Forwards:      fwds,
				ClearForwards: clearForwards,
			})
			if err != nil {
				return err
			}
			printSetResult(cmd, name, "network", describeNetwork(res.Config.Network), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&bridgeIf, "bridge-if", "", "host interface to bridge (vmnet-bridged)")
	cmd.Flags().StringArrayVar(&forwards, "forward", nil, "add a port forward NAME=[PROTO:]HOST:GUEST (repeatable)")
	cmd.Flags().BoolVar(&clearForwards, "clear-forwards", false, "remove existing port forwards first")

	return cmd
}

func printSetResult(cmd *cobra.Command, name, what, desc string, res *vm.SetResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s of VM %s to %s\n", what, name, desc)
	if res.LiveUnaffected {
		fmt.Fprintln(out, "VM is running; the change takes effect on next start")
	}
}
