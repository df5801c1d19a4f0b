// Command lsnpd runs a single LSNP peer process: it binds the shared UDP
// socket, announces a profile, and serves until interrupted. It is a
// minimal driver, not the interactive shell spec.md §6 treats as an
// external collaborator. Grounded on
// _examples/zeromq-gyre/cmd/ping/ping.go's event-loop-around-one-Node
// shape, adapted from ZRE's channel-of-Events to our Run/Shutdown calls.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vanasher/lsnp-go/config"
	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/node"
)

func main() {
	username := flag.String("username", "", "local username (required)")
	displayName := flag.String("display-name", "", "display name announced in PROFILE")
	status := flag.String("status", "", "status line announced in PROFILE")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *username == "" {
		log.Fatal("lsnpd: -username is required")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("lsnpd: %v", err)
	}

	logger := logging.New(*verbose)
	n, err := node.New(cfg, logger)
	if err != nil {
		log.Fatalf("lsnpd: %v", err)
	}

	localIP := "127.0.0.1"
	if addr, ok := n.LocalAddr(); ok {
		localIP = addr
	}
	if first := n.Store.SetOwnProfile(*username, localIP, *displayName, *status, "", "", ""); first {
		n.AnnounceNow()
	}

	n.Run(cfg)
	log.Printf("lsnpd: listening on port %d as %s@%s", n.Port(), *username, localIP)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("lsnpd: shutting down")
	if err := n.Shutdown(); err != nil {
		log.Printf("lsnpd: shutdown error: %v", err)
	}
}
