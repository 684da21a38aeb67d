// Command livekv is a command-line client for the livekv protocol: it
// can insert a value, fetch a prefix once, or watch a prefix and print
// every update as it arrives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/livekv"
	"github.com/example/livekv/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:   "livekv",
		Short: "livekv is a command-line client for the livekv protocol",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "ws://localhost:3990/", "server WebSocket URL")

	root.AddCommand(newInsertCmd(&addr), newGetCmd(&addr), newWatchCmd(&addr))
	return root
}

func newInsertCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <key> <json-value>",
		Short: "insert a JSON value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := json.RawMessage(args[1])
			if !json.Valid(value) {
				return fmt.Errorf("livekv: %q is not valid JSON", args[1])
			}

			c, err := dial(cmd.Context(), *addr)
			if err != nil {
				return err
			}
			defer c.Close()

			return c.Insert(args[0], value)
		},
	}
}

func newGetCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <prefix>",
		Short: "fetch every entry whose key starts with prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context(), *addr)
			if err != nil {
				return err
			}
			defer c.Close()

			h, err := c.Get(livekv.PrefixSelector(args[0]))
			if err != nil {
				return fmt.Errorf("livekv: get: %w", err)
			}
			defer h.Close()

			res, err := h.Recv(cmd.Context())
			if err != nil {
				return fmt.Errorf("livekv: get: %w", err)
			}
			return printResults(res)
		},
	}
}

func newWatchCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <prefix>",
		Short: "watch a prefix and print every update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context(), *addr)
			if err != nil {
				return err
			}
			defer c.Close()

			h, err := c.Watch(livekv.PrefixSelector(args[0]))
			if err != nil {
				return fmt.Errorf("livekv: watch: %w", err)
			}
			defer h.Close()

			for {
				res, err := h.Recv(cmd.Context())
				if err != nil {
					return err
				}
				if err := printResults(res); err != nil {
					return err
				}
			}
		},
	}
}

func dial(ctx context.Context, addr string) (*client.Client, error) {
	c, err := client.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("livekv: %w", err)
	}
	return c, nil
}

func printResults(res []livekv.KVPair) error {
	for _, pair := range res {
		fmt.Printf("%s\t%s\n", pair.Key, pair.Value)
	}
	return nil
}
