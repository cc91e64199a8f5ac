package client

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/rendezchat/rendez/cli/input"
	"github.com/rendezchat/rendez/cli/options"
	"github.com/rendezchat/rendez/pkg/client"
)

// NewCommands returns the client command.
func NewCommands() []cli.Command {
	return []cli.Command{{
		Name:      "client",
		Usage:     "connect to a directory server and chat",
		UsageText: "rendez client [host:port] [--config-path path] [--listen] [--debug]",
		Action:    startClient,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config-path, c",
				Usage: "path to the yaml configuration",
			},
			cli.BoolFlag{
				Name:  "listen, l",
				Usage: "accept inbound peer connections as well as dialing out",
			},
			cli.BoolFlag{
				Name:  "debug, d",
				Usage: "enable debug logging",
			},
		},
	}}
}

// terminalAuth prompts for credentials on the controlling terminal.
type terminalAuth struct{}

func (terminalAuth) UserCredentials() (client.Credentials, error) {
	return promptPair("username")
}

func (terminalAuth) RoomCredentials() (client.Credentials, error) {
	return promptPair("room")
}

func promptPair(what string) (client.Credentials, error) {
	name, err := input.ReadLine(what + ": ")
	if err != nil {
		return client.Credentials{}, err
	}
	passwd, err := input.ReadPassword(what + " password: ")
	if err != nil {
		return client.Credentials{}, err
	}
	return client.Credentials{Name: name, Passwd: passwd}, nil
}

func startClient(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if arg := ctx.Args().First(); arg != "" {
		cfg.Client.ServerAddress = arg
	}
	if ctx.Bool("listen") {
		cfg.Client.Listen = true
	}

	log, err := options.HandleLoggingParams(ctx.Bool("debug"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer log.Sync()

	c := client.New(cfg.Client, log)
	if err := c.Connect(terminalAuth{}); err != nil {
		return cli.NewExitError(err, 1)
	}

	w := ctx.App.Writer
	fmt.Fprintf(w, "connected as %s to room %s; type to chat, Ctrl-D to leave\n",
		c.Self().Name, c.Room().Name)
	go renderEvents(w, c)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if line == "" {
				continue
			}
			if c.Broadcast(line) == 0 {
				fmt.Fprintln(w, "(nobody is listening)")
			}
		case <-sigChan:
			break loop
		case <-c.Done():
			break loop
		}
	}
	c.Close()
	return nil
}

func renderEvents(w io.Writer, c *client.Client) {
	for {
		select {
		case ev := <-c.Events():
			switch ev.Kind {
			case client.KindMessage:
				fmt.Fprintf(w, "[%s] %s\n", ev.Peer.Name, ev.Text)
			case client.KindPeerUp:
				fmt.Fprintf(w, "* %s joined\n", ev.Peer.Name)
			case client.KindPeerDown:
				fmt.Fprintf(w, "* %s left\n", ev.Peer.Name)
			case client.KindControlDown:
				fmt.Fprintln(w, "* lost the directory connection")
			}
		case <-c.Done():
			return
		}
	}
}
