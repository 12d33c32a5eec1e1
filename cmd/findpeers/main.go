// Command findpeers runs a node on a random UDP port that searches for
// peers of a given infohash, printing each one as it is discovered, and
// repeats the search every five seconds until the process is killed.
//
// IMPORTANT: if the UDP port is not reachable from the public internet,
// you may see very few results. Finding peers for an obscure infohash
// can take a minute or two and may require contacting hundreds of
// nodes first.
//
// A debug server exposing expvar counters is available at
// http://localhost:8711/debug/vars.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"mldht"
	"mldht/id"
)

const (
	httpPortTCP = 8711
	exampleIH   = "99c82bb73505a3c0b453f9fa0e881d6e5a32a0c1"
)

func main() {
	cfg := mldht.NewConfig()
	mldht.RegisterFlags(cfg)
	flag.Parse()
	if len(flag.Args()) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %v <infohash>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example infohash: %v\n", exampleIH)
		flag.PrintDefaults()
		os.Exit(1)
	}
	ih, err := id.FromHex(flag.Args()[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad infohash: %v\n", err)
		os.Exit(1)
	}

	node, err := mldht.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mldht.New: %v\n", err)
		os.Exit(1)
	}
	go http.ListenAndServe(fmt.Sprintf(":%d", httpPortTCP), nil)

	if err := node.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "node.Start: %v\n", err)
		os.Exit(1)
	}
	go drainEvents(node)

	fmt.Println("Peers found:")
	seen := make(map[string]bool)
	count := 0
	for {
		for _, addr := range node.GetPeers(ih) {
			key := addr.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			fmt.Printf("%d: %v\n", count, addr)
			count++
		}
		time.Sleep(5 * time.Second)
	}
}

// drainEvents prints the node's listening and peer-store events so a
// long running node has some visible sign of life beyond the peer list.
func drainEvents(n *mldht.Node) {
	for ev := range n.Events() {
		switch ev.Kind {
		case mldht.Listening:
			fmt.Printf("listening on %v (node id %v)\n", ev.Addr, n.ID)
		case mldht.PeerNew:
			fmt.Printf("peer:new %v for %v\n", ev.Addr, ev.InfoHash)
		case mldht.PeerDeleted:
			fmt.Printf("peer:delete %v for %v\n", ev.Addr, ev.InfoHash)
		case mldht.ErrorEvent:
			// Malformed or unauthenticated packets are routine background
			// noise on the mainline network; not worth surfacing above
			// debug level.
		}
	}
}
