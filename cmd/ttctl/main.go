// Command ttctl is a small operator CLI against a running orchestrator,
// built the way cmd/cli/cli is: a urfave/cli app with a shared --addr
// flag and one subcommand per operation, rendering a progress bar for
// the long-running wait-sync operation with mpb.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/mco-piccolo/timpani/internal/plan"
	"github.com/mco-piccolo/timpani/internal/registrar"
	"github.com/mco-piccolo/timpani/internal/rpc"
)

var addrFlag = cli.StringFlag{
	Name:  "addr",
	Value: "127.0.0.1:7777",
	Usage: "orchestrator address (host:port)",
}

func main() {
	app := cli.NewApp()
	app.Name = "ttctl"
	app.Usage = "operate a Timpani orchestrator"
	app.Flags = []cli.Flag{addrFlag}
	app.Commands = []cli.Command{
		statusCommand,
		registerCommand,
		waitSyncCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ttctl:", err)
		os.Exit(1)
	}
}

var statusCommand = cli.Command{
	Name:      "status",
	Usage:     "fetch the plan slice currently served to a node",
	ArgsUsage: "NODE_ID",
	Action: func(c *cli.Context) error {
		nodeID := c.Args().First()
		if nodeID == "" {
			return cli.NewExitError("status: NODE_ID is required", 1)
		}
		client, err := rpc.Dial(c.GlobalString(addrFlag.Name))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), rpc.DefaultCallTimeout)
		defer cancel()
		data, err := client.SchedInfo(ctx, nodeID)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if len(data) == 0 {
			fmt.Printf("node %s: no plan installed yet\n", nodeID)
			return nil
		}
		workloadID, hyperperiodUS, tasks, err := plan.DecodeNodeSlice(data)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Printf("node %s: workload=%s hyperperiod_us=%d tasks=%d\n", nodeID, workloadID, hyperperiodUS, len(tasks))
		for _, t := range tasks {
			fmt.Printf("  %-15s period_us=%-8d runtime_us=%-8d deadline_us=%-8d priority=%d\n",
				t.Name, t.PeriodUS, t.RuntimeUS, t.DeadlineUS, t.Priority)
		}
		return nil
	},
}

var registerCommand = cli.Command{
	Name:      "register",
	Usage:     "announce a node id to the orchestrator",
	ArgsUsage: "NODE_ID",
	Action: func(c *cli.Context) error {
		nodeID := c.Args().First()
		if nodeID == "" {
			return cli.NewExitError("register: NODE_ID is required", 1)
		}
		client, err := rpc.Dial(c.GlobalString(addrFlag.Name))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), rpc.DefaultCallTimeout)
		defer cancel()
		if err := client.Register(ctx, nodeID); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Printf("node %s registered\n", nodeID)
		return nil
	},
}

var waitSyncCommand = cli.Command{
	Name:      "wait-sync",
	Usage:     "poll Sync until the start barrier opens, rendering progress over the connect window",
	ArgsUsage: "NODE_ID",
	Action: func(c *cli.Context) error {
		nodeID := c.Args().First()
		if nodeID == "" {
			return cli.NewExitError("wait-sync: NODE_ID is required", 1)
		}
		client, err := rpc.Dial(c.GlobalString(addrFlag.Name))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer client.Close()

		p := mpb.New(mpb.WithWidth(48))
		bar := p.AddBar(int64(registrar.MaxConnectRetries),
			mpb.PrependDecorators(decor.Name("waiting for barrier ")),
			mpb.AppendDecorators(decor.Percentage()),
		)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(registrar.MaxConnectRetries)*time.Second)
		defer cancel()

		var reply rpc.SyncReply
		for attempt := 0; attempt < registrar.MaxConnectRetries; attempt++ {
			reply, err = client.Sync(ctx, nodeID)
			if err != nil {
				p.Wait()
				return cli.NewExitError(err.Error(), 1)
			}
			bar.SetCurrent(int64(attempt + 1))
			if reply.Ack == 1 {
				break
			}
			select {
			case <-ctx.Done():
				p.Wait()
				return cli.NewExitError("wait-sync: timed out waiting for barrier", 1)
			case <-time.After(time.Second):
			}
		}
		bar.SetCurrent(int64(registrar.MaxConnectRetries))
		p.Wait()

		if reply.Ack != 1 {
			return cli.NewExitError("wait-sync: barrier did not open", 1)
		}
		start := time.Unix(reply.Sec, int64(reply.Nsec))
		fmt.Printf("barrier open, start instant %s\n", start.Format(time.RFC3339Nano))
		return nil
	},
}
