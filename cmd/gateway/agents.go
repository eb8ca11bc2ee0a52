package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/openfinance-gateway/internal/engine"
	"github.com/xela07ax/openfinance-gateway/internal/infra"
)

const agentsTimeout = 15 * time.Second

func newAgentsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Operate the agent kill-switch shared by all gateway instances",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "block <agent_id>",
		Short: "Block an agent on every instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKillSwitch(cmd.Context(), root, func(ctx context.Context, ksm *engine.KillSwitchManager) error {
				if err := ksm.Block(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "agent %s blocked\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unblock <agent_id>",
		Short: "Lift a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKillSwitch(cmd.Context(), root, func(ctx context.Context, ksm *engine.KillSwitchManager) error {
				if err := ksm.Unblock(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "agent %s unblocked\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List blocked agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKillSwitch(cmd.Context(), root, func(ctx context.Context, ksm *engine.KillSwitchManager) error {
				if err := ksm.Init(ctx); err != nil {
					return err
				}
				for _, id := range ksm.Snapshot() {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	})

	return cmd
}

func withKillSwitch(ctx context.Context, root *rootOptions, fn func(context.Context, *engine.KillSwitchManager) error) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rdb := newRedisClient(cfg.Redis)
	defer rdb.Close()

	// The whole command, retries included, shares one deadline
	ctx, cancel := context.WithTimeout(ctx, agentsTimeout)
	defer cancel()

	ksm := engine.NewKillSwitchManager(rdb, logger)
	return engine.Retry(ctx, logger, "kill-switch", redisRetryPolicy(cfg.Redis), func(ctx context.Context) error {
		return fn(ctx, ksm)
	})
}
