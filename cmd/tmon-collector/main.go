package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/aldyh/tmon/internal/config"
	"github.com/aldyh/tmon/internal/logx"
	"github.com/aldyh/tmon/internal/store"
	"github.com/aldyh/tmon/internal/supervisor"
	"github.com/aldyh/tmon/internal/transport/serialbus"
	"github.com/aldyh/tmon/internal/transport/udpbus"
)

func main() {
	app := &cli.App{
		Name:      "tmon-collector",
		Usage:     "collect thermal-channel readings from sensor devices into a local time-series store",
		ArgsUsage: "<config-path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log at debug level",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "override the config file's transport selection: rs485 or udp",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("expected exactly one config-path argument", 2)
	}
	cfg, err := config.Load(c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}
	if override := c.String("transport"); override != "" {
		cfg.Transport = override
	}

	logger := logx.New(log.New(os.Stderr, "tmon-collector: ", log.LstdFlags), c.Bool("verbose"))

	st, err := store.Open(cfg.DB)
	if err != nil {
		return cli.Exit(err, 1)
	}

	sv, err := buildSupervisor(cfg, st, logger)
	if err != nil {
		st.Close()
		return cli.Exit(err, 1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	return sv.Run(ctx)
}

// buildSupervisor constructs the concrete transport named by cfg and
// wraps it in the matching Supervisor. The transport constructors live
// here, where the concrete serialbus/udpbus packages are known; the
// supervisor package itself stays transport-agnostic.
func buildSupervisor(cfg config.Config, st *store.Store, log *logx.Logger) (*supervisor.Supervisor, error) {
	switch cfg.Transport {
	case "rs485":
		port, err := serialbus.Open(cfg.Port, cfg.BaudRate, serialbus.DefaultTimeout, log)
		if err != nil {
			return nil, err
		}
		return supervisor.NewPollSupervisor(port, port, st, cfg.Devices, time.Duration(cfg.Interval)*time.Second, log), nil
	case "udp":
		sock, err := udpbus.Bind(cfg.UDPPort)
		if err != nil {
			return nil, err
		}
		return supervisor.NewPushSupervisor(sock, sock, st, log), nil
	default:
		return nil, cli.Exit("unknown transport: "+cfg.Transport, 2)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, the same
// shutdown-flag idiom the teacher's own cmd/cli/main.go uses.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
