package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/tuition-engine/config"
	"github.com/warp/tuition-engine/intent"
)

func newClassifyCmd() *cobra.Command {
	var rulesOnly bool

	cmd := &cobra.Command{
		Use:   "classify [message]",
		Short: "Classify a chat message and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			text := strings.Join(args, " ")
			var res intent.Result
			if rulesOnly {
				res = intent.FallbackClassify(text)
			} else {
				res = newClassifier(cfg, log, nil).Classify(cmd.Context(), text)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "skip the collaborator and use rule extraction")
	return cmd
}
