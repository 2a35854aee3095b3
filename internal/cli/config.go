package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/inkwell/internal/config"
)

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	Encoding string // "toml" | "yaml"
	Env      bool
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after the config file and INKWELL_* environment
variables have been applied and invalid values clamped.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(rootOpts, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Encoding, "encoding", "toml", "file encoding to print (toml|yaml)")
	cmd.Flags().BoolVar(&opts.Env, "env", false, "list the recognized environment variables instead")

	return cmd
}

func runConfig(rootOpts *RootOptions, opts *ConfigOptions, w io.Writer) error {
	if opts.Env {
		names := config.EnvNames()
		return writeOutput(w, rootOpts.Format, names, func(w io.Writer) error {
			for _, name := range names {
				if _, err := fmt.Fprintln(w, name); err != nil {
					return err
				}
			}
			return nil
		})
	}

	cfg, logger, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return writeOutput(w, rootOpts.Format, cfg, func(w io.Writer) error {
		data, err := config.Encode(cfg, config.Format(opts.Encoding))
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}
