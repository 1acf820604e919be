// Package main is the entry point of the CCTPR relay engine: an HTTP service
// and CLI that quote, compare and track USDC transfers relayed over CCTP.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/config"
	"github.com/yourorg/cctpr-engine/internal/otel"
	"github.com/yourorg/cctpr-engine/internal/route"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var network string
	root := &cobra.Command{
		Use:           "cctpr-engine",
		Short:         "Quote, compare and track CCTPR relayed USDC transfers",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
			if network != "" {
				os.Setenv("NETWORK", network)
			}
		},
	}
	root.PersistentFlags().StringVar(&network, "network", "", "Mainnet or Testnet (overrides NETWORK)")
	root.AddCommand(newServeCmd(), newQuoteCmd(), newCorridorsCmd(), newVersionCmd())
	return root
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			shutdownTracer := otel.InitTracer(cfg)
			defer shutdownTracer()

			deps, closeClients, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			defer closeClients()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return NewServer(cfg, deps).Run(ctx)
		},
	}
}

func newQuoteCmd() *cobra.Command {
	var req RoutesRequest
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Find the routes of a transfer and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			deps, closeClients, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			defer closeClients()

			in, err := req.Intent(cfg.Network, cfg.RelayFeeMaxChangeMargin)
			if err != nil {
				return err
			}
			finder := route.NewFinder(deps.Fast)
			if deps.Gasless != nil {
				finder.WithGasless(deps.Gasless)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
			defer cancel()
			routes, err := finder.FindRoutes(ctx, in)
			if err != nil {
				return err
			}
			return printJSON(route.Summarize(routes))
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Source, "source", "", "source domain")
	f.StringVar(&req.Destination, "destination", "", "destination domain")
	f.StringVar(&req.Sender, "sender", "", "sender address on the source")
	f.StringVar(&req.Recipient, "recipient", "", "recipient address on the destination")
	f.StringVar(&req.Amount, "amount", "", "USDC amount")
	f.StringVar(&req.Direction, "direction", "in", "whether amount is what is sent (in) or received (out)")
	f.StringVar(&req.GasDropoff, "gas-dropoff", "", "destination gas token to deliver to the recipient")
	f.StringVar(&req.PaymentToken, "pay-in", "usdc", "relay fee currency: usdc or native")
	for _, name := range []string{"source", "destination", "sender", "recipient", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newCorridorsCmd() *cobra.Command {
	var source, destination string
	cmd := &cobra.Command{
		Use:   "corridors",
		Short: "Print the corridors, relay costs and transfer times from a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			deps, closeClients, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			defer closeClients()

			src, err := types.ParseDomain(source)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
			defer cancel()

			dsts := types.SupportedDomains(cfg.Network)
			if destination != "" {
				dst, err := types.ParseDomain(destination)
				if err != nil {
					return err
				}
				dsts = []types.Domain{dst}
			}
			all, err := cctpr.GetCorridorsToAll(ctx, cfg.Network, src, dsts, deps.Fast)
			if err != nil && len(all) == 0 {
				return err
			}
			views := make(map[types.Domain][]CorridorView, len(all))
			for d, c := range all {
				views[d] = corridorViews(c)
			}
			return printJSON(views)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source domain")
	cmd.Flags().StringVar(&destination, "destination", "", "destination domain (default: all)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("cctpr-engine %s\n", version)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
