package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/qvm-dev/qvm/internal/paths"
)

func newDeleteCmd() *cobra.Command {
	var (
		force bool
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a VM and all of its files",
		Long: `Remove the VM directory, including its disk image. A running VM is
refused unless --force is given, in which case it is stopped first.
Without --yes or --force, qvm asks for confirmation on a terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			mgr, err := newManager()
			if err != nil {
				return err
			}

			if !yes && !force {
				prompt := fmt.Sprintf("Delete VM %s and everything in %s? [y/N] ", name, paths.VMDir(mgr.Home(), name))
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}
			if err := mgr.Delete(cmd.Context(), name, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted VM %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "stop the VM if it is running and skip confirmation")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	return cmd
}

var errNotInteractive = errors.New("refusing to delete without confirmation: stdin is not a terminal (use --yes)")

// confirm asks a yes/no question. Only a terminal can answer it.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, errNotInteractive
	}

	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
