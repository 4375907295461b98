// Command airdrop-bridge-discover is the companion client spec §4.5
// names as the reason the registry publishes _airdrop_proxy._tcp: a
// small standalone lookup tool that finds a running bridge on the local
// network without prior configuration, using a plain mDNS client rather
// than the bridge's own per-interface responder/socket fleet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dotside-studios/airdrop-bridge/airdrop"
	"github.com/dotside-studios/airdrop-bridge/mdns"
)

func main() {
	timeout := flag.Duration("timeout", mdns.DiscoverTimeout, "how long to listen for bridge advertisements")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	found, err := mdns.DiscoverViaZeroconf(ctx, airdrop.ProxyServiceName)
	if err != nil {
		log.Fatalf("discover: %v", err)
	}

	count := 0
	for instance := range found {
		count++
		fmt.Printf("%s\t%s:%d\n", instance.Instance, instance.Host, instance.Port)
	}
	if count == 0 {
		log.Fatalf("no %s instance found within %s", airdrop.ProxyServiceName, *timeout)
	}
}
