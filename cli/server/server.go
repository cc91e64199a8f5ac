package server

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/rendezchat/rendez/cli/options"
	"github.com/rendezchat/rendez/pkg/directory"
	"github.com/rendezchat/rendez/pkg/services/metrics"
)

// NewCommands returns the server command.
func NewCommands() []cli.Command {
	return []cli.Command{{
		Name:      "server",
		Usage:     "start the rendezvous directory server",
		UsageText: "rendez server [port] [--config-path path] [--debug]",
		Action:    startServer,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config-path, c",
				Usage: "path to the yaml configuration",
			},
			cli.BoolFlag{
				Name:  "debug, d",
				Usage: "enable debug logging",
			},
		},
	}}
}

func startServer(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if arg := ctx.Args().First(); arg != "" {
		port, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return cli.NewExitError(fmt.Errorf("invalid port %q: %w", arg, err), 1)
		}
		cfg.Server.Port = uint16(port)
	}

	log, err := options.HandleLoggingParams(ctx.Bool("debug"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer log.Sync()

	srv := directory.New(cfg.Server, log)
	if err := srv.Listen(); err != nil {
		return cli.NewExitError(err, 1)
	}

	prometheus := metrics.NewPrometheusService(cfg.Server.Prometheus, log)
	pprof := metrics.NewPprofService(cfg.Server.Pprof, log)
	prometheus.Start()
	pprof.Start()

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Serve() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go runConsole(ctx.App.Writer, srv, sigChan)

	var fatalErr error
	select {
	case err := <-errChan:
		fatalErr = err
	case sig := <-sigChan:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}
	prometheus.ShutDown()
	pprof.ShutDown()
	srv.Shutdown()
	if fatalErr != nil {
		return cli.NewExitError(fatalErr, 1)
	}
	return nil
}

// runConsole services the admin console on stdin. Closing stdin ends
// the console but not the server; "exit" stops both.
func runConsole(w io.Writer, srv *directory.Server, quit chan<- os.Signal) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "":
		case "echo users":
			for _, u := range srv.Users().Snapshot() {
				fmt.Fprintf(w, "%d\t%s\n", u.ID, u.Name)
			}
		case "echo rooms":
			for _, r := range srv.Rooms().Snapshot() {
				fmt.Fprintf(w, "%d\t%s\t%d member(s)\n", r.ID, r.Name, len(r.Members))
				for _, m := range r.Members {
					fmt.Fprintf(w, "\t%d\t%s\t%s\n", m.ID, m.Name, m.Addr)
				}
			}
		case "exit":
			quit <- syscall.SIGTERM
			return
		default:
			fmt.Fprintln(w, "unknown command, try 'echo users', 'echo rooms' or 'exit'")
		}
	}
}
