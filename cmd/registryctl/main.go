// cmd/registryctl is the CLI entry-point built with Cobra.
//
// Usage:
//
//	registryctl register svc-A 10.0.0.5:9000 --server localhost:8080 --hb-server localhost:9090
//	registryctl get svc-A                     --server localhost:8080
//	registryctl list                          --server localhost:8080
//	registryctl deregister svc-A              --server localhost:8080
//	registryctl debug-peers                   --server localhost:8080
//	registryctl inspect /var/registryd/node1/objects.db
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/kraklabs/registryd/internal/client"
)

var (
	bizServer string
	hbServer  string
	timeout   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "registryctl",
		Short: "CLI client for the distributed service registry",
	}

	root.PersistentFlags().StringVarP(&bizServer, "server", "s", "localhost:8080", "registry business-plane address")
	root.PersistentFlags().StringVar(&hbServer, "hb-server", "localhost:9090", "registry liveness-plane address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(registerCmd(), updateCmd(), getCmd(), listCmd(), deregisterCmd(), heartbeatCmd(), pingCmd(), debugPeersCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(bizServer, hbServer, timeout)
}

// ─── register ─────────────────────────────────────────────────────────────────

func registerCmd() *cobra.Command {
	var language, version, region string
	var heartbeatEvery time.Duration

	cmd := &cobra.Command{
		Use:   "register <name> <address>",
		Short: "Register a service object, optionally heartbeating it forever",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			name, address := args[0], args[1]
			if err := c.Register(context.Background(), name, address, language, version, region); err != nil {
				return err
			}
			fmt.Printf("registered %q at %q\n", name, address)

			if heartbeatEvery <= 0 {
				return nil
			}

			// Keeps heartbeating name at this interval until killed, or until
			// the node reports name as no longer registered — handy
			// for smoke-testing a cluster interactively without standing up
			// a real service process behind it.
			ticker := time.NewTicker(heartbeatEvery)
			defer ticker.Stop()
			for range ticker.C {
				ok, err := c.Heartbeat(context.Background(), name)
				if err != nil {
					fmt.Fprintf(os.Stderr, "heartbeat failed: %v\n", err)
					continue
				}
				if !ok {
					fmt.Fprintf(os.Stderr, "heartbeat: %q no longer registered\n", name)
					return nil
				}
				fmt.Printf("heartbeat sent for %q\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "object language tag")
	cmd.Flags().StringVar(&version, "version", "", "object version tag")
	cmd.Flags().StringVar(&region, "region", "", "object region tag")
	cmd.Flags().DurationVar(&heartbeatEvery, "heartbeat-every", 0, "if set, keep sending heartbeats for name at this interval until killed or name is no longer registered")
	return cmd
}

// ─── update ───────────────────────────────────────────────────────────────────

func updateCmd() *cobra.Command {
	var language, version, region string
	cmd := &cobra.Command{
		Use:   "update <name> <address>",
		Short: "Update an already-registered object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			return c.Update(context.Background(), args[0], args[1], language, version, region)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "object language tag")
	cmd.Flags().StringVar(&version, "version", "", "object version tag")
	cmd.Flags().StringVar(&region, "region", "", "object region tag")
	return cmd
}

// ─── get / list ───────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Retrieve the address registered under name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			address, ok, err := c.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("%q not found\n", args[0])
				return nil
			}
			fmt.Println(address)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every object registered on the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			objects, err := c.List(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(objects)
			return nil
		},
	}
}

// ─── deregister / heartbeat / ping ────────────────────────────────────────────

func deregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deregister <name>",
		Short: "Remove an object from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			if err := c.Deregister(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deregistered %q\n", args[0])
			return nil
		},
	}
}

func heartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <name>",
		Short: "Send a single heartbeat for name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			ok, err := c.Heartbeat(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ok=%v\n", ok)
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the node believes itself PRIMARY",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			primary, err := c.Ping(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("primary=%v\n", primary)
			return nil
		},
	}
}

// ─── debug-peers ──────────────────────────────────────────────────────────────

// debugPeersCmd hits the node's admin-plane /debug/peers endpoint, which
// returns arbitrary operator-facing JSON that doesn't fit the typed SDK
// surface, so it goes through GetRaw instead of a dedicated Client method.
func debugPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug-peers",
		Short: "Dump the node's known peers and replication stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			body, err := c.GetRaw(context.Background(), "/debug/peers")
			if err != nil {
				return err
			}
			var parsed any
			if err := json.Unmarshal([]byte(body), &parsed); err != nil {
				fmt.Println(body)
				return nil
			}
			prettyPrint(parsed)
			return nil
		},
	}
}

// ─── inspect ──────────────────────────────────────────────────────────────────

// inspectCmd dumps a node's durable row store directly, without going
// through the running node's HTTP API — useful for debugging a node's
// on-disk state while the process is stopped.
func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <db-path>",
		Short: "Dump a node's durable object store directly from its SQLite file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sql.Open("sqlite", args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer db.Close()

			rows, err := db.Query(`SELECT name, address, language, version, region, last_seen FROM objects ORDER BY name`)
			if err != nil {
				return fmt.Errorf("query objects: %w", err)
			}
			defer rows.Close()

			type row struct {
				Name     string  `json:"name"`
				Address  string  `json:"address"`
				Language string  `json:"language"`
				Version  string  `json:"version"`
				Region   string  `json:"region"`
				LastSeen float64 `json:"last_seen"`
			}
			var out []row
			for rows.Next() {
				var r row
				if err := rows.Scan(&r.Name, &r.Address, &r.Language, &r.Version, &r.Region, &r.LastSeen); err != nil {
					return fmt.Errorf("scan row: %w", err)
				}
				out = append(out, r)
			}
			prettyPrint(out)
			return rows.Err()
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
