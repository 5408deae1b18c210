// Package cli implements the qvm command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qvm-dev/qvm/internal/disk"
	"github.com/qvm-dev/qvm/internal/paths"
	"github.com/qvm-dev/qvm/internal/vm"
)

var cfgFile string

// NewRootCmd creates the root command for the qvm CLI.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qvm",
		Short: "Manage local QEMU virtual machines",
		Long: `qvm creates and runs QEMU virtual machines from a per-VM directory
under ~/qvm. Each VM keeps its configuration in vm.json next to its
disk image and UEFI variable store, and a running VM is tracked by
the pid recorded in vm.pid.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.qvm.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("home", "", "directory holding the VMs (default is $HOME/qvm)")
	rootCmd.PersistentFlags().Duration("stop-timeout", vm.DefaultStopTimeout, "grace period before a stop gives up or escalates")
	rootCmd.PersistentFlags().String("qemu-img", disk.DefaultQemuImg, "qemu-img binary used to create disk images")

	// Bind flags to viper
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("home", rootCmd.PersistentFlags().Lookup("home"))
	viper.BindPFlag("stop-timeout", rootCmd.PersistentFlags().Lookup("stop-timeout"))
	viper.BindPFlag("qemu-img", rootCmd.PersistentFlags().Lookup("qemu-img"))

	// Add subcommands
	rootCmd.AddCommand(newVersionCmd(version))
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newSetDisplayCmd())
	rootCmd.AddCommand(newSetNetworkCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInspectCmd())

	return rootCmd
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".qvm")
	}

	viper.SetEnvPrefix("QVM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Configure logging based on log level
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return nil
}

// newManager builds a vm.Manager from the resolved configuration.
func newManager() (*vm.Manager, error) {
	home := viper.GetString("home")
	if home == "" {
		var err error
		if home, err = paths.DefaultHome(); err != nil {
			return nil, err
		}
	}
	home, err := paths.ExpandHome(home)
	if err != nil {
		return nil, err
	}

	timeout := viper.GetDuration("stop-timeout")
	if timeout <= 0 {
		timeout = vm.DefaultStopTimeout
	}
	log := logrus.StandardLogger()

	return vm.NewManager(home,
		vm.WithLogger(log),
		vm.WithStopTimeout(timeout),
		vm.WithProvisioner(&disk.QemuImg{Binary: viper.GetString("qemu-img"), Log: log}),
	), nil
}

