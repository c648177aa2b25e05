package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/config"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/serialport"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "portunus-bio",
		Short:         "Biometric access gateway for a serial fingerprint reader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (.yaml, .yml, .json or .toml); PORTUNUS_* env vars apply underneath")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log_level: trace|debug|info|warn|error")

	root.AddCommand(newServeCmd(flags), newPortsCmd(flags))
	return root
}

// loadConfig reads the config file over the environment, then applies
// flag overrides.
func (f *rootFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg, nil
}

func newPortsCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports present on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := flags.loadConfig(); err != nil {
				return err
			}
			link := serialport.NewLink(serialport.Options{Logger: zerolog.Nop()})
			defer link.Close()
			return printPorts(cmd.OutOrStdout(), link.RefreshPorts(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printPorts(w io.Writer, ports []serialport.PortInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ports)
	}
	if len(ports) == 0 {
		_, err := fmt.Fprintln(w, "no serial ports found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tUSB\tVID:PID\tDESCRIPTION")
	for _, p := range ports {
		vidpid := ""
		if p.VID != "" {
			vidpid = p.VID + ":" + p.PID
		}
		desc := p.Description
		if desc == "" {
			desc = p.Manufacturer
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", p.Device, p.IsUSB, vidpid, desc)
	}
	return tw.Flush()
}
