package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/mguindin/mongomgr/internal/config"
	"github.com/mguindin/mongomgr/internal/connmgr"
)

// Sentinel errors for CLI validation.
var (
	errHostsRequired       = errors.New("--hosts flag is required when no named seed is given")
	errUnknownSeedName     = errors.New("no seed configured under this name")
	errUnknownDeployment   = errors.New("unknown deployment type, expected standalone, replica_set, or multi_router")
	errUnknownReadPrefMode = errors.New("unknown read preference")
)

func connectCmd() *cobra.Command {
	var (
		name           string
		hosts          []string
		deploymentType string
		replicaSetName string
		readPreference string
		authDB         string
		username       string
		password       string
		write          bool
		timeout        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect [seed-name]",
		Short: "Resolve a seed set to a live connection",
		Long:  "Resolves a configured or flag-specified seed set to a single connection via GetReadWriteConnection, printing the selection or the accumulated dial errors.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			seeds, err := resolveSeedSet(args, name, hosts, deploymentType, replicaSetName, readPreference, authDB, username, password)
			if err != nil {
				return fmt.Errorf("resolve seed set: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			var flags connmgr.Flags
			if write {
				flags |= connmgr.FlagWrite
			}

			conn, err := mgr.GetReadWriteConnection(ctx, seeds, flags)
			if err != nil {
				return fmt.Errorf("get read-write connection: %w", err)
			}

			out, err := formatConnection(conn, outputFormat)
			if err != nil {
				return fmt.Errorf("format connection: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "name of a configured seed set (overridden by a positional argument)")
	flags.StringSliceVar(&hosts, "hosts", nil, "seed hosts as host:port (comma-separated)")
	flags.StringVar(&deploymentType, "deployment-type", "standalone", "standalone, replica_set, or multi_router")
	flags.StringVar(&replicaSetName, "replica-set", "", "expected replica set name (replica_set deployments)")
	flags.StringVar(&readPreference, "read-preference", "primary", "primary, primary_preferred, secondary, secondary_preferred, or nearest")
	flags.StringVar(&authDB, "auth-db", "", "authentication database")
	flags.StringVar(&username, "username", "", "authentication username")
	flags.StringVar(&password, "password", "", "authentication password")
	flags.BoolVar(&write, "write", false, "force a write-capable (primary) selection")
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "deadline for the connect attempt")

	return cmd
}

// resolveSeedSet resolves a connmgr.SeedSet either from a named entry in
// the loaded configuration or from the --hosts/--deployment-type/etc.
// flags. A positional argument takes precedence over --name.
func resolveSeedSet(args []string, name string, hosts []string, deploymentType, replicaSetName, readPreference, authDB, username, password string) (*connmgr.SeedSet, error) {
	if len(args) > 0 {
		name = args[0]
	}

	if name != "" {
		sc, ok := findSeedByName(loadedConfig.Seeds, name)
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, errUnknownSeedName)
		}
		return seedConfigToSeedSet(sc)
	}

	if len(hosts) == 0 {
		return nil, errHostsRequired
	}

	sc := config.SeedConfig{
		Hosts:          hosts,
		DeploymentType: deploymentType,
		ReplicaSetName: replicaSetName,
		ReadPreference: readPreference,
		AuthDB:         authDB,
		Username:       username,
		Password:       password,
	}
	return seedConfigToSeedSet(sc)
}

func findSeedByName(seeds []config.SeedConfig, name string) (config.SeedConfig, bool) {
	for _, sc := range seeds {
		if sc.Name == name {
			return sc, true
		}
	}
	return config.SeedConfig{}, false
}

// seedConfigToSeedSet converts a config.SeedConfig into a connmgr.SeedSet,
// the same conversion cmd/mongomgrd performs for its own configured seeds.
func seedConfigToSeedSet(sc config.SeedConfig) (*connmgr.SeedSet, error) {
	deployment, err := parseDeploymentType(sc.DeploymentType)
	if err != nil {
		return nil, err
	}
	mode, err := parseReadPreferenceMode(sc.ReadPreference)
	if err != nil {
		return nil, err
	}

	servers := make([]connmgr.ServerDef, 0, len(sc.Hosts))
	for _, hp := range sc.Hosts {
		host, portStr, err := net.SplitHostPort(hp)
		if err != nil {
			return nil, fmt.Errorf("parse host:port %q: %w", hp, err)
		}
		var port uint16
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return nil, fmt.Errorf("parse port %q: %w", portStr, err)
		}
		servers = append(servers, connmgr.ServerDef{
			Host: host, Port: port,
			AuthDB: sc.AuthDB, Username: sc.Username, Password: sc.Password,
		})
	}

	return &connmgr.SeedSet{
		Servers:         servers,
		DeploymentType:  deployment,
		ReadPreference:  connmgr.ReadPreference{Mode: mode, Window: loadedConfig.Pool.SelectionWindow},
		ExpectedReplSet: sc.ReplicaSetName,
	}, nil
}

func parseDeploymentType(s string) (connmgr.DeploymentType, error) {
	switch s {
	case "", "standalone":
		return connmgr.Standalone, nil
	case "replica_set":
		return connmgr.ReplicaSet, nil
	case "multi_router":
		return connmgr.MultiRouter, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errUnknownDeployment)
	}
}

func parseReadPreferenceMode(s string) (connmgr.Mode, error) {
	switch s {
	case "", "primary":
		return connmgr.Primary, nil
	case "primary_preferred":
		return connmgr.PrimaryPreferred, nil
	case "secondary":
		return connmgr.Secondary, nil
	case "secondary_preferred":
		return connmgr.SecondaryPreferred, nil
	case "nearest":
		return connmgr.Nearest, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errUnknownReadPrefMode)
	}
}
