// Command relay is a minimal WebSocket pub/sub broker for camlink
// deployments without MQTT or Redis. Point both ends at ws://<host>:<port>/ws.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/1ureka/camlink/internal/pubsub"
	"github.com/1ureka/camlink/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := flag.String("listen", ":8090", "Listen address")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("camlink relay — v%s", version))
	pterm.Println()

	relay := pubsub.NewRelay()
	addr, err := relay.Start(*listen)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogSuccess("relay listening on ws://%s/ws", addr)

	<-ctx.Done()
	util.LogInfo("closing relay (%d clients connected)", relay.Clients())
	relay.Close()
}
