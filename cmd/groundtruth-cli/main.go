// Package main provides the groundtruth-cli command-line tool for validating
// configuration and running one-off geocoding and verification calls.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	groundtruth "github.com/relief-labs/groundtruth"
	"github.com/relief-labs/groundtruth/internal/version"
	"github.com/relief-labs/groundtruth/providers"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "groundtruth-cli",
		Short:         "groundtruth command line tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (JSON/YAML)")

	root.AddCommand(validateCmd(), providersCmd(), versionCmd(), geocodeCmd(), extractCmd(), verifyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := groundtruth.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := groundtruth.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation: %w", err)
			}
			fmt.Println("✓ Config is valid")
			fmt.Printf("  Provider: %s\n", cfg.Provider.Name)
			fmt.Printf("  Cache:    %s\n", cfg.Cache.Backend)
			return nil
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List model providers available from the environment",
		RunE: func(*cobra.Command, []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck

			names := svc.Providers()
			if len(names) == 0 {
				fmt.Println("No providers configured. Set GEMINI_API_KEY or OPENAI_API_KEY.")
				return nil
			}
			fmt.Println("Configured providers:")
			for _, name := range names {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("groundtruth-cli %s\n", version.String())
		},
	}
}

// newService builds a Service from --config (or defaults) with providers
// registered from environment variables.
func newService() (*groundtruth.Service, error) {
	var cfg groundtruth.Config
	if configPath != "" {
		loaded, err := groundtruth.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if err := groundtruth.ValidateConfig(*loaded); err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	svc, err := groundtruth.New(cfg)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		p, err := providers.NewGemini(key, "")
		if err != nil {
			return nil, err
		}
		svc.RegisterProvider(p)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := providers.NewOpenAI(key, "")
		if err != nil {
			return nil, err
		}
		svc.RegisterProvider(p)
	}
	return svc, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func geocodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geocode <location-name>",
		Short: "Resolve a place name to coordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck

			loc, err := svc.Geocode(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(loc)
		},
	}
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <text>",
		Short: "Extract a location name from a free-text description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck

			location, err := svc.ExtractLocation(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(location)
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "verify <image-url>",
		Short: "Verify a report image's authenticity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck

			v, err := svc.VerifyImage(context.Background(), args[0], description)
			if err != nil {
				return err
			}
			return printJSON(v)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "report description the image should match")
	return cmd
}
