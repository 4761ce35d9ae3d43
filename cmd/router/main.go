package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vrouter/pkg/config"
)

var (
	configPath     string
	routeTablePath string
	arpCachePath   string
	logLevel       string
	noShell        bool
)

var rootCmd = &cobra.Command{
	Use:          "router --config <router.yaml>",
	Short:        "A software IPv4 router speaking RIP over UDP-emulated links",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "router config file (yaml)")
	flags.StringVarP(&routeTablePath, "rtable", "r", "", "static route table; disables RIP")
	flags.StringVarP(&arpCachePath, "arp", "a", "", "static arp cache")
	flags.StringVar(&logLevel, "log-level", "", "override the config's log level")
	flags.BoolVar(&noShell, "no-shell", false, "run without the interactive shell")
	rootCmd.MarkFlagRequired("config")
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if routeTablePath != "" {
		cfg.RouteTable = routeTablePath
	}
	if arpCachePath != "" {
		cfg.ArpCache = arpCachePath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	node, err := InitNode(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- node.Router.Run(ctx) }()

	if noShell {
		<-ctx.Done()
	} else if err := node.Shell(ctx); err != nil {
		logger.WithError(err).Error("shell exited")
	}

	stop()
	return <-done
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
