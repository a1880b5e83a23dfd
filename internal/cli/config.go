package cli

import (
	"fmt"
	"io"

	"deadlinebot/internal/app"
	"deadlinebot/internal/config"

	"github.com/spf13/cobra"
)

func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Decode and validate the config without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager(rootOpts.ConfigPath).Parse()
			if err == nil {
				err = app.CheckConfig(cfg)
			}
			res := struct {
				Path  string `json:"path"`
				Valid bool   `json:"valid"`
				Error string `json:"error,omitempty"`
			}{Path: rootOpts.ConfigPath, Valid: err == nil}
			if err != nil {
				res.Error = err.Error()
			}
			if oerr := output(cmd.OutOrStdout(), rootOpts.Format, res, func(w io.Writer) {
				if err == nil {
					fmt.Fprintf(w, "%s: ok\n", rootOpts.ConfigPath)
				} else {
					fmt.Fprintf(w, "%s: invalid\n%v\n", rootOpts.ConfigPath, err)
				}
			}); oerr != nil {
				return oerr
			}
			return err
		},
	})
	return cmd
}
