package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/snare/internal/config"
	"github.com/soyeahso/snare/internal/llm"
	"github.com/soyeahso/snare/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration and readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			cmd.Println(version.Info())
			cmd.Println()
			cmd.Printf("home:        %s\n", paths.Base)
			cmd.Printf("config:      %s\n", paths.Config)
			cmd.Printf("data:        %s\n", paths.Data)
			cmd.Println()
			cmd.Printf("server:      %s port %d (auth %s)\n",
				cfg.Server.Bind, cfg.Server.Port, onOff(cfg.Server.APIKey != ""))
			cmd.Printf("sessions:    %s store\n", cfg.Session.Store)

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			providers := registry.List()
			if len(providers) == 0 {
				cmd.Printf("llm:         none configured (provider %q)\n", cfg.LLM.Provider)
			} else {
				cmd.Printf("llm:         %s (model %s)\n", strings.Join(providers, ", "), cfg.LLM.Model)
			}

			cmd.Printf("persona:     %s\n", cfg.Persona.Name)
			cmd.Printf("policy:      threshold %.2f, floor %d, ceiling %d\n",
				cfg.Policy.DetectionThreshold, cfg.Policy.EngagementFloor, cfg.Policy.MessageCeiling)
			cmd.Printf("callback:    %s\n", onOff(cfg.Callback.URL != ""))
			cmd.Printf("email:       %s\n", onOff(cfg.Channels.Email != nil))

			if issues := config.Validate(&cfg); len(issues) > 0 {
				cmd.Println()
				cmd.Printf("%d config issue(s):\n", len(issues))
				for _, issue := range issues {
					cmd.Printf("  - %s\n", issue)
				}
			}
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
