package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

const pollInterval = 2 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "swapcli"
	app.Usage = "swap on-chain bitcoin to lightning and lightning to on-chain bitcoin"

	app.Flags = urlFlags

	app.Commands = []*cli.Command{
		{
			Name:    "quote",
			Aliases: []string{"q"},
			Usage:   "show fees and limits for an amount",
			Action:  quote,
			Flags: []cli.Flag{
				directionFlag,
				&cli.Uint64Flag{
					Name:    "send",
					Aliases: []string{"s"},
					Usage:   "amount to send in sats",
				},
				&cli.Uint64Flag{
					Name:    "receive",
					Aliases: []string{"r"},
					Usage:   "amount to receive in sats, takes precedence over --send",
				},
			},
		},
		{
			Name:    "pay", // on-chain -> ln
			Aliases: []string{"p"},
			Usage:   "pay a lightning invoice with on-chain funds",
			Action:  WithLoader(pay),
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "invoice",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "BOLT11 invoice to pay",
				},
				waitFlag,
			},
		},
		{
			Name:    "receive", // ln -> on-chain
			Aliases: []string{"r"},
			Usage:   "receive on-chain funds by paying a lightning invoice",
			Action:  WithLoader(receive),
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:     "amount",
					Aliases:  []string{"a"},
					Required: true,
					Usage:    "invoice amount in sats",
				},
				&cli.StringFlag{
					Name:     "address",
					Required: true,
					Usage:    "destination address of the on-chain funds",
				},
				waitFlag,
			},
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "list swaps",
			Action:  list,
		},
		{
			Name:      "get",
			Usage:     "show a swap",
			ArgsUsage: "<swap id>",
			Action:    get,
		},
		{
			Name:   "health",
			Usage:  "check the daemon can reach the swap service",
			Action: health,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func quote(c *cli.Context) error {
	rest, err := client(c)
	if err != nil {
		return err
	}
	resp, err := rest.quote(c.Context, c.String("direction"), c.Uint64("send"), c.Uint64("receive"))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func pay(c *cli.Context) error {
	rest, err := client(c)
	if err != nil {
		return err
	}

	resp, err := rest.pay(c.Context, c.String("invoice"))
	if err != nil {
		return err
	}
	logrus.Infof("send %d sats to %s", resp.ExpectedAmount, resp.LockupAddress)

	if !c.Bool("wait") {
		return printJSON(resp)
	}
	return waitForSwap(c.Context, rest, resp.Id)
}

func receive(c *cli.Context) error {
	rest, err := client(c)
	if err != nil {
		return err
	}

	resp, err := rest.receive(c.Context, c.Uint64("amount"), c.String("address"))
	if err != nil {
		return err
	}
	logrus.Infof("pay invoice %s to receive %d sats", resp.Invoice, resp.OnchainAmount)

	if !c.Bool("wait") {
		return printJSON(resp)
	}
	return waitForSwap(c.Context, rest, resp.Id)
}

func list(c *cli.Context) error {
	rest, err := client(c)
	if err != nil {
		return err
	}
	resp, err := rest.list(c.Context)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func get(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("missing swap id")
	}
	rest, err := client(c)
	if err != nil {
		return err
	}
	resp, err := rest.get(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func health(c *cli.Context) error {
	tlsConfig, err := loadTLSConfig(c.String("tls-cert"))
	if err != nil {
		return err
	}
	creds := insecure.NewCredentials()
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}

	conn, err := grpc.NewClient(grpcTarget(c.String("server-url")), grpc.WithTransportCredentials(creds))
	if err != nil {
		return err
	}
	// nolint:all
	defer conn.Close()

	resp, err := grpchealth.NewHealthClient(conn).Check(c.Context, &grpchealth.HealthCheckRequest{})
	if err != nil {
		return err
	}
	fmt.Println(resp.GetStatus().String())
	return nil
}

func waitForSwap(ctx context.Context, rest *restClient, id string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		resp, err := rest.get(ctx, id)
		if err != nil {
			return err
		}
		switch resp.Status {
		case "claimed":
			return printJSON(resp)
		case "failed":
			return fmt.Errorf("swap %s failed: %s", id, resp.FailureReason)
		}
	}
}

func client(c *cli.Context) (*restClient, error) {
	tlsConfig, err := loadTLSConfig(c.String("tls-cert"))
	if err != nil {
		return nil, err
	}
	return newRestClient(c.String("server-url"), tlsConfig), nil
}

func printJSON(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

var urlFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "server-url",
		Aliases: []string{"u"},
		Value:   "localhost:7000",
		EnvVars: []string{"SWAPCLI_SERVER_URL"},
		Usage:   "swapd server URL (e.g. localhost:7000)",
	},
	&cli.StringFlag{
		Name:    "tls-cert",
		EnvVars: []string{"SWAPCLI_TLS_CERT"},
		Usage:   "PEM certificate of a swapd server with TLS enabled",
	},
}

var directionFlag = &cli.StringFlag{
	Name:    "direction",
	Aliases: []string{"d"},
	Value:   "forward",
	Usage:   "swap direction: forward (on-chain -> ln) | reverse (ln -> on-chain)",
}

var waitFlag = &cli.BoolFlag{
	Name:  "wait",
	Usage: "wait for the swap to complete",
}

// Loader function with animation
func loader(done chan bool) {
	chars := []rune{'|', '/', '-', '\\'}
	for {
		select {
		case <-done:
			fmt.Printf("\r               \r")
			return
		default:
			for _, r := range chars {
				fmt.Printf("\r%c Loading...", r)
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

// Wrapper for cli.ActionFunc that adds a loader animation
func WithLoader(action cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		done := make(chan bool)

		go loader(done)

		err := action(c)

		done <- true

		return err
	}
}
