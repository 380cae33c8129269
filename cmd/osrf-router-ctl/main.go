// Command osrf-router-ctl sends a standalone router_command=register or
// unregister NetworkMessage, for operators wiring a service in or out of
// routing without restarting its controller. Flag parsing follows the
// teacher's cmd/echo-client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/opensrf-project/opensrf-go/internal/config"
	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/xmpptransport"
)

func main() {
	var (
		configFile  = flag.String("f", "", "bootstrap config file (required)")
		contextName = flag.String("c", "config.opensrf", "bootstrap config context")
		service     = flag.String("s", "", "service name to register or unregister (required)")
		command     = flag.String("a", "register", "router_command: register or unregister")
	)
	flag.Parse()

	if *configFile == "" || *service == "" {
		fmt.Fprintln(os.Stderr, "usage: osrf-router-ctl -f <config> -s <service> [-c <context>] [-a register|unregister]")
		os.Exit(2)
	}
	if *command != "register" && *command != "unregister" {
		fmt.Fprintf(os.Stderr, "osrf-router-ctl: -a must be register or unregister, got %q\n", *command)
		os.Exit(2)
	}

	data, err := os.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-router-ctl: read config: %v\n", err)
		os.Exit(1)
	}
	root, err := config.ParseBootstrap(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-router-ctl: %v\n", err)
		os.Exit(1)
	}
	boot, err := config.ResolveBootstrap(root, *contextName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-router-ctl: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jid := fmt.Sprintf("%s@%s/router_ctl", boot.Username, boot.Domain)
	tr, err := xmpptransport.Dial(ctx, xmpptransport.Config{JID: jid, Password: boot.Password}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-router-ctl: dial transport: %v\n", err)
		os.Exit(1)
	}
	defer tr.Disconnect()

	err = tr.Send(ctx, transport.NetworkMessage{
		Recipient:     boot.RouterName + "@" + boot.Domain,
		RouterCommand: *command,
		RouterClass:   *service,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-router-ctl: send: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("sent router_command=%s for service %q\n", *command, *service)
}
