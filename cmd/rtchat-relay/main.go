// rtchat-relay: a signaling relay for rtchat peers that cannot reach each
// other directly. It only forwards signaling lines; chat traffic never
// passes through it.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/1ureka/rtchat/internal/config"
	"github.com/1ureka/rtchat/internal/relay"
	"github.com/1ureka/rtchat/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.LoadRelay(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	srv := relay.NewServer(relay.Options{
		QueueSize:    cfg.QueueSize,
		MaxRooms:     cfg.MaxRooms,
		RoomTTL:      cfg.RoomTTL,
		AllowOrigins: cfg.AllowOrigins,
		Debug:        cfg.Debug,
	})
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		util.LogError("relay stopped: %v", err)
		os.Exit(1)
	}

	util.LogInfo("relay shut down")
}
