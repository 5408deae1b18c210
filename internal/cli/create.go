package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qvm-dev/qvm/internal/vm"
	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

func newCreateCmd() *cobra.Command {
	var (
		arch     string
		cpu      string
		smp      uint32
		sockets  uint32
		cores    uint32
		threads  uint32
		mem      uint32
		diskPath string
		diskSize string
		network  string
		bridgeIf string
		forwards []string
		display  string
		df       displayFlags
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new VM",
		Long: `Create a VM directory under the qvm home with a vm.json, a UEFI
variable store seeded from the host firmware and, with --disk-size, an
empty qcow2 disk image.`,
		Example: `  qvm create dev --arch arm64 --mem 4096 --smp 4 --disk-size 64G
  qvm create web --network user --forward ssh=tcp:2222:22 --display headless
  qvm create desk --display spice --addr 0.0.0.0 --port 5931`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := vm.CreateRequest{DiskSize: diskSize}
			req.Name = args[0]

			if arch == "" {
				arch = viper.GetString("default-arch")
			}
			if arch != "" {
				a, err := api.ParseArch(arch)
				if err != nil {
					return err
				}
				req.Arch = a
			}

			req.CPUModel = cpu
			req.SMP = smp
			req.Sockets = sockets
			req.Cores = cores
			req.Threads = threads
			req.MemMB = mem
			req.Disk = diskPath

			netMode, err := api.ParseNetworkMode(network)
			if err != nil {
				return err
			}
			tmp := &api.VMConfig{}
			if err := vmconfig.ApplyNetwork(tmp, networkUpdate(netMode, bridgeIf)); err != nil {
				return err
			}
			if tmp.Network.Forwards, err = parseForwards(forwards); err != nil {
				return err
			}
			req.Network = tmp.Network

			dispMode, err := api.ParseDisplayMode(display)
			if err != nil {
				return err
			}
			if err := vmconfig.ApplyDisplay(tmp, df.update(cmd, dispMode)); err != nil {
				return err
			}
			req.Display = tmp.Display

			mgr, err := newManager()
			if err != nil {
				return err
			}
			cfg, err := mgr.Create(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created VM %s (%s, %d vCPU, %d MiB) at %s\n",
				cfg.Meta.Name, cfg.Meta.Arch, cfg.Hardware.VCPUs(), cfg.Hardware.MemMB, cfg.Paths.Root)
			return nil
		},
	}

	cmd.Flags().StringVar(&arch, "arch", "", "guest architecture: aarch64|arm64|x86_64|amd64 (default: host)")
	cmd.Flags().StringVar(&cpu, "cpu", vmconfig.DefaultCPU, "CPU model")
	cmd.Flags().Uint32Var(&smp, "smp", 0, "number of cores when no explicit topology is given")
	cmd.Flags().Uint32Var(&sockets, "sockets", 0, "CPU sockets")
	cmd.Flags().Uint32Var(&cores, "cores", 0, "cores per socket")
	cmd.Flags().Uint32Var(&threads, "threads", 0, "threads per core")
	cmd.Flags().Uint32Var(&mem, "mem", vmconfig.DefaultMemMB, "memory in MiB")
	cmd.Flags().StringVar(&diskPath, "disk", vmconfig.DefaultDisk, "disk image path, relative to the VM directory unless absolute")
	cmd.Flags().StringVar(&diskSize, "disk-size", "", "create an empty qcow2 disk of this size (e.g. 64G)")
	cmd.Flags().StringVar(&network, "network", string(api.NetworkShared), "network mode: vmnet-shared|vmnet-bridged|user")
	cmd.Flags().StringVar(&bridgeIf, "bridge-if", "", "host interface for vmnet-bridged (default "+api.DefaultBridgeInterface+")")
	cmd.Flags().StringArrayVar(&forwards, "forward", nil, "user-mode port forward NAME=[PROTO:]HOST:GUEST (repeatable)")
	cmd.Flags().StringVar(&display, "display", string(api.DisplayCocoa), "display mode: cocoa|vnc|spice|headless")
	df.register(cmd)

	return cmd
}

// networkUpdate fills in the default bridge interface for new bridged
// configurations.
func networkUpdate(mode api.NetworkMode, bridgeIf string) vmconfig.NetworkUpdate {
	if mode == api.NetworkBridged && bridgeIf == "" {
		bridgeIf = api.DefaultBridgeInterface
	}
	return vmconfig.NetworkUpdate{Mode: mode, BridgeIf: bridgeIf}
}

func parseForwards(specs []string) (map[string]api.PortForward, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]api.PortForward, len(specs))
	for _, s := range specs {
		name, fwd, err := vmconfig.ParseForward(s)
		if err != nil {
			return nil, err
		}
		out[name] = fwd
	}
	return out, nil
}
