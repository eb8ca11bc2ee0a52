package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
	"github.com/xela07ax/openfinance-gateway/internal/engine"
)

func newAuthorizeCmd(root *rootOptions) *cobra.Command {
	var (
		body  engine.AuthorizeRequest
		limit string
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Evaluate one agent spending request against the guardrail",
		Example: `  gateway authorize --agent agent_ai_2026_001 --limit 250 --category restaurants
  gateway authorize --agent agent_ai_2026_001 --limit 600 --category restaurants --currency EUR`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			cfg, err := root.load()
			if err != nil {
				return err
			}
			guardrail, _, err := buildCore(cfg)
			if err != nil {
				return err
			}

			if body.SpendingLimit, err = parseAmount("spending_limit", limit); err != nil {
				return printRejection(out, err)
			}
			req, err := body.Validate()
			if err != nil {
				return printRejection(out, err)
			}

			verdict, err := guardrail.Evaluate(req)
			if err != nil {
				return printRejection(out, domain.NewInternalError("Authorization could not be completed"))
			}
			if !verdict.Approved {
				return printRejection(out, verdict.Denial)
			}
			return printJSON(out, engine.NewAuthorizeResponse(verdict))
		},
	}

	f := cmd.Flags()
	f.StringVar(&body.AgentID, "agent", "", "agent identifier")
	f.StringVar(&limit, "limit", "", "requested spending limit, e.g. 250.00")
	f.StringVar(&body.Currency, "currency", "", "ISO 4217 currency (default USD)")
	f.StringVar(&body.MerchantCategory, "category", "", "merchant category, e.g. restaurants")

	return cmd
}

func newEnrichCmd(root *rootOptions) *cobra.Command {
	var (
		body   engine.EnrichRequest
		amount string
	)

	cmd := &cobra.Command{
		Use:     "enrich",
		Short:   "Estimate the carbon footprint of one transaction",
		Example: `  gateway enrich --mcc 5411 --amount 50 --description "Weekly groceries"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			cfg, err := root.load()
			if err != nil {
				return err
			}
			_, estimator, err := buildCore(cfg)
			if err != nil {
				return err
			}

			if body.Amount, err = parseAmount("amount", amount); err != nil {
				return printRejection(out, err)
			}
			q, err := body.Validate()
			if err != nil {
				return printRejection(out, err)
			}
			return printJSON(out, engine.NewEnrichResponse(q, estimator.Estimate(q)))
		},
	}

	f := cmd.Flags()
	f.StringVar(&body.MCC, "mcc", "", "4-digit merchant category code")
	f.StringVar(&amount, "amount", "", "transaction amount")
	f.StringVar(&body.Description, "description", "", "transaction description")

	return cmd
}

// parseAmount leaves an empty value as zero so Validate reports it with the other fields.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fieldError(field, "must be a number")
	}
	if !domain.AmountInBounds(d) {
		return decimal.Zero, fieldError(field, fmt.Sprintf("must have at most %d integer digits and %d decimal places",
			domain.MaxAmountIntegerDigits, domain.MaxAmountScale))
	}
	return d, nil
}

func fieldError(field, msg string) error {
	return domain.NewInvalidInput("Request validation failed", map[string]any{
		"fields": map[string]any{field: msg},
	})
}
