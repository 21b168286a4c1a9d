// Command reachctl registers and looks up agents in a reach registry.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/layer-3/reach"
)

func main() {
	app := &cli.App{
		Name:  "reachctl",
		Usage: "agent discovery registry client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "registry", Value: reach.DefaultRegistryURL, EnvVars: []string{"REACH_REGISTRY_URL"}, Usage: "registry base URL"},
			&cli.StringFlag{Name: "identity", EnvVars: []string{"REACH_IDENTITY"}, Usage: "identity file (default: <config dir>/agent-id/identity.json)"},
			&cli.DurationFlag{Name: "timeout", Value: reach.DefaultTimeout, Usage: "request timeout"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "create an identity if none exists and print its DID",
				Action: keygen,
			},
			{
				Name:   "whoami",
				Usage:  "print this agent's DID",
				Action: whoami,
			},
			{
				Name:      "register",
				Usage:     "publish an endpoint for this agent",
				ArgsUsage: "<endpoint>",
				Flags:     []cli.Flag{ttlFlag()},
				Action:    register,
			},
			{
				Name:      "lookup",
				Usage:     "resolve a DID to its endpoint",
				ArgsUsage: "<did>",
				Action:    lookup,
			},
			{
				Name:   "deregister",
				Usage:  "remove this agent from the registry",
				Action: deregister,
			},
			{
				Name:   "status",
				Usage:  "show this agent's registration",
				Action: status,
			},
			{
				Name:      "sign-register",
				Usage:     "print a signed register body for registries accepting signed requests",
				ArgsUsage: "<endpoint>",
				Flags:     []cli.Flag{ttlFlag()},
				Action:    signRegister,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func ttlFlag() cli.Flag {
	return &cli.Uint64Flag{Name: "ttl", Usage: "seconds until the entry expires (registry default when unset)"}
}

func ttlArg(c *cli.Context) *uint64 {
	if !c.IsSet("ttl") {
		return nil
	}
	v := c.Uint64("ttl")
	return &v
}

func identityPath(c *cli.Context) (string, error) {
	if p := c.String("identity"); p != "" {
		return p, nil
	}
	return reach.DefaultIdentityPath()
}

func loadIdentity(c *cli.Context) (*reach.Identity, error) {
	path, err := identityPath(c)
	if err != nil {
		return nil, err
	}
	return reach.LoadOrGenerateIdentity(path)
}

func newClient(c *cli.Context) (*reach.HTTPClient, error) {
	id, err := loadIdentity(c)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if c.Bool("verbose") {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	return reach.NewHTTPClient(c.String("registry"), id,
		reach.WithLogger(logger),
		reach.WithHTTPClient(&http.Client{Timeout: c.Duration("timeout")}),
	), nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("usage: reachctl %s %s", c.Command.Name, c.Command.ArgsUsage), 2)
	}
	v := c.Args().First()
	if v == "" {
		return "", cli.Exit(name+" must not be empty", 2)
	}
	return v, nil
}

func keygen(c *cli.Context) error {
	path, err := identityPath(c)
	if err != nil {
		return err
	}
	id, err := reach.LoadOrGenerateIdentity(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n(identity: %s)\n", id.DID(), path)
	return nil
}

func whoami(c *cli.Context) error {
	id, err := loadIdentity(c)
	if err != nil {
		return err
	}
	fmt.Println(id.DID())
	return nil
}

func register(c *cli.Context) error {
	endpoint, err := requireArg(c, "endpoint")
	if err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}

	res, err := client.Register(c.Context, endpoint, ttlArg(c))
	if err != nil {
		return err
	}
	fmt.Printf("registered %s\n  endpoint: %s\n  expires:  %s\n", res.DID, endpoint, time.Unix(res.ExpiresAt, 0).UTC().Format(time.RFC3339))
	return nil
}

func lookup(c *cli.Context) error {
	did, err := requireArg(c, "did")
	if err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}

	listing, err := client.Lookup(c.Context, did)
	if err != nil {
		return err
	}
	return printJSON(listing)
}

func deregister(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}

	existed, err := client.Deregister(c.Context)
	if err != nil {
		return err
	}
	if existed {
		fmt.Println("deregistered", client.DID())
	} else {
		fmt.Println("not registered", client.DID())
	}
	return nil
}

func status(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}

	listing, err := client.Status(c.Context)
	if err != nil {
		return err
	}
	if listing == nil {
		fmt.Printf("not registered\n  did: %s\n", client.DID())
		return nil
	}
	fmt.Printf("registered\n  did:      %s\n  endpoint: %s\n  expires:  %s\n",
		listing.DID, listing.Endpoint, time.Unix(listing.ExpiresAt, 0).UTC().Format(time.RFC3339))
	return nil
}

func signRegister(c *cli.Context) error {
	endpoint, err := requireArg(c, "endpoint")
	if err != nil {
		return err
	}
	id, err := loadIdentity(c)
	if err != nil {
		return err
	}
	return printJSON(reach.SignedRegistration(id, endpoint, ttlArg(c)))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
