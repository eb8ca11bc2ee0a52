package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xela07ax/openfinance-gateway/internal/carbon"
	"github.com/xela07ax/openfinance-gateway/internal/infra"
	"github.com/xela07ax/openfinance-gateway/internal/infra/respond"
	"github.com/xela07ax/openfinance-gateway/internal/policy"
)

// errRejected means the request was refused and the envelope is already on stdout.
var errRejected = errors.New("request rejected")

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Open Finance gateway: agent spending guardrails and carbon enrichment",
		Long: `Open Finance gateway.

Serves the HTTP API, or evaluates single requests offline against the same
guardrail and carbon reference data the server uses.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./config.yaml or ./configs/config.yaml)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAuthorizeCmd(opts))
	cmd.AddCommand(newEnrichCmd(opts))
	cmd.AddCommand(newAgentsCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func (o *rootOptions) load() (*infra.Config, error) {
	cfg, err := infra.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildCore assembles both decision cores from config.
func buildCore(cfg *infra.Config) (*policy.Guardrail, *carbon.Estimator, error) {
	limits, err := cfg.GuardrailLimits()
	if err != nil {
		return nil, nil, err
	}
	prefix := cfg.Guardrail.ConsentPrefix
	if prefix == "" {
		prefix = policy.DefaultConsentPrefix
	}
	guardrail, err := policy.NewGuardrail(limits, policy.NewUUIDIssuer(prefix))
	if err != nil {
		return nil, nil, err
	}

	table, err := cfg.FactorTable()
	if err != nil {
		return nil, nil, err
	}
	return guardrail, carbon.NewEstimator(table), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRejection writes the error envelope and returns errRejected.
func printRejection(w io.Writer, err error) error {
	_, body := respond.Envelope(err)
	if perr := printJSON(w, body); perr != nil {
		return perr
	}
	return fmt.Errorf("%w: %s", errRejected, body.Error.Code)
}
