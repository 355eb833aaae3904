// Command bitseal drives the object lifecycle engine from the command
// line: create identities, send messages, and advance the durable work
// queue. Grounded on the teacher's cobra root-command-plus-nested-command
// layout (cmd/synnergy/main.go).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/loki-sama/bitseal/core"
	"github.com/loki-sama/bitseal/pkg/config"
)

var (
	engineStore   core.Store
	engineGateway core.Gateway
	engineOrch    *core.Orchestrator
	engineSched   *core.Scheduler
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bitseal",
		Short: "object lifecycle engine for a store-and-forward messaging network",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initEngine()
		},
	}
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(queueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initEngine() error {
	// godotenv.Load is a best-effort convenience for local runs; a missing
	// .env file is not an error, and real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	engineStore = core.NewMemStore()
	engineGateway = core.NewHTTPGateway(cfg.Gateway.BaseURL, time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)
	resolver := core.NewResolver(engineStore, engineGateway, core.TimeFieldAuto)

	policy := core.RetryPolicy{
		FirstAttemptTTLSeconds:       cfg.Queue.FirstAttemptTTLSeconds,
		SubsequentAttemptsTTLSeconds: cfg.Queue.SubsequentAttemptsTTLSeconds,
		MinimumTimeToLiveSeconds:     cfg.Queue.MinimumTimeToLiveSeconds,
		MaximumAttempts:              cfg.Queue.MaximumAttempts,
	}
	workers := 0
	if cfg.PoW.Enabled {
		workers = cfg.PoW.Workers
	}
	engineOrch = core.NewOrchestrator(engineStore, engineGateway, resolver, policy,
		cfg.PoW.NetworkNonceTrialsPerByte, cfg.PoW.NetworkExtraBytes, workers, core.TimeFieldAuto)

	engineSched = core.NewScheduler(engineOrch, engineStore, engineGateway, core.SchedulerConfig{
		PollInterval:             time.Duration(cfg.Scheduler.MinimumTimeBehindNetworkSeconds) * time.Second,
		DatabaseCleaningInterval: time.Duration(cfg.Scheduler.TimeBetweenDatabaseCleaningSeconds) * time.Second,
		PubkeyRedisseminateAfter: time.Duration(cfg.Scheduler.PubkeyRedisseminateAfterDays) * 24 * time.Hour,
	})
	return nil
}

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identity"}
	create := &cobra.Command{
		Use:   "create [label]",
		Short: "create a new address and queue its pubkey for dissemination",
		Run: func(cmd *cobra.Command, args []string) {
			label := ""
			if len(args) > 0 {
				label = args[0]
			}
			id, err := engineOrch.CreateIdentity(label, time.Now().Unix())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(id.Address.String())
		},
	}
	cmd.AddCommand(create)
	return cmd
}

func messageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "message"}
	send := &cobra.Command{
		Use:   "send [from] [to] [subject] [body]",
		Short: "queue a message for delivery",
		Args:  cobra.ExactArgs(4),
		Run: func(cmd *cobra.Command, args []string) {
			from, err := core.DecodeAddress(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			to, err := core.DecodeAddress(args[1])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			msg, err := engineOrch.SendMessage(context.Background(), from, to, args[2], args[3], time.Now().Unix())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(msg.ID)
		},
	}
	cmd.AddCommand(send)
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "queue"}
	tick := &cobra.Command{
		Use:   "tick",
		Short: "run one scheduling cycle now",
		Run: func(cmd *cobra.Command, args []string) {
			if err := engineSched.RunOnce(context.Background(), time.Now()); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "list due queue records",
		Run: func(cmd *cobra.Command, args []string) {
			due, err := engineStore.ListDueQueueRecords(time.Now().Unix())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			for _, r := range due {
				fmt.Printf("%s\t%s\tattempts=%d\n", r.ID, r.Task.String(), r.Attempts)
			}
		},
	}
	cmd.AddCommand(tick, status)
	return cmd
}
