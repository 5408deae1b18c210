package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/qvm-dev/qvm/internal/vm"
)

func newListCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List VMs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			vms, err := mgr.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if quiet {
				for _, s := range vms {
					fmt.Fprintln(out, s.Name)
				}
				return nil
			}
			if len(vms) == 0 {
				fmt.Fprintf(out, "No VMs in %s\n", mgr.Home())
				return nil
			}
			printList(out, vms)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print VM names")

	return cmd
}

func printList(out io.Writer, vms []*vm.Summary) {
	nameW := len("NAME")
	for _, s := range vms {
		nameW = max(nameW, len(s.Name))
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-*s  %-8s  %-7s  %-7s  %-5s  %-8s  %-9s  %s",
		nameW, "NAME", "STATE", "PID", "ARCH", "VCPU", "MEMORY", "DISPLAY", "NETWORK")))

	for _, s := range vms {
		pid, arch, vcpu, mem, disp, net := "-", "-", "-", "-", "-", "-"
		if s.PID > 0 {
			pid = strconv.Itoa(s.PID)
		}
		if c := s.Config; c != nil {
			arch = string(c.Meta.Arch)
			vcpu = strconv.FormatUint(uint64(c.Hardware.VCPUs()), 10)
			mem = units.BytesSize(float64(c.Hardware.MemMB) * units.MiB)
			disp = string(c.Display.Mode())
			if c.Network.Backend != nil {
				net = string(c.Network.Backend.Mode())
			}
		}
		fmt.Fprintf(out, "%s  %s  %-7s  %-7s  %-5s  %-8s  %-9s  %s\n",
			column(valueStyle, s.Name, nameW),
			column(stateStyle(s.State), s.State.String(), 8),
			pid, arch, vcpu, mem, disp, net)
	}
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status NAME",
		Short: "Show the state of a VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			s, err := mgr.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), s)
			return nil
		},
	}
	return cmd
}

func printStatus(out io.Writer, s *vm.Summary) {
	row := func(label, value string) {
		fmt.Fprintf(out, "%s %s\n", column(labelStyle, label+":", 10), valueStyle.Render(value))
	}

	row("Name", s.Name)
	fmt.Fprintf(out, "%s %s\n", column(labelStyle, "State:", 10), stateStyle(s.State).Render(s.State.String()))
	if s.State == vm.StateRunning {
		row("PID", strconv.Itoa(s.PID))
		if !s.Started.IsZero() {
			row("Started", fmt.Sprintf("%s (%s ago)", s.Started.Format(time.RFC3339),
				units.HumanDuration(time.Since(s.Started))))
		}
	}
	row("Directory", s.Dir)

	if s.Err != nil {
		row("Error", s.Err.Error())
		return
	}
	c := s.Config
	row("Arch", string(c.Meta.Arch))
	row("UUID", c.Meta.UUID)
	row("CPU", fmt.Sprintf("%s, %d vCPU (%d sockets, %d cores, %d threads)",
		c.Hardware.CPUModel, c.Hardware.VCPUs(), c.Hardware.Sockets, c.Hardware.Cores, c.Hardware.Threads))
	row("Memory", units.BytesSize(float64(c.Hardware.MemMB)*units.MiB))
	row("Machine", fmt.Sprintf("%s (accel %s)", c.Hardware.Machine, c.Hardware.Accel))
	row("MAC", c.Hardware.MAC)
	row("Disk", c.Paths.Disk)
	row("Display", describeDisplay(c.Display))
	row("Network", describeNetwork(c.Network))
}
