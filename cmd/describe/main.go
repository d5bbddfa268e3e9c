package main

import (
	"encoding/json"
	"flag"
	"log"
	"net"
	"os"
	"time"

	tcpapi "wyoming-stt-bridge/internal/api/tcp"
	"wyoming-stt-bridge/internal/wyoming"
)

func main() {
	serverURI := flag.String("server", "tcp://localhost:10301", "Wyoming server URI")
	flag.Parse()

	network, address, err := tcpapi.ParseURI(*serverURI)
	if err != nil {
		log.Fatal(err)
	}
	conn, err := net.DialTimeout(network, address, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Fatal(err)
	}
	if err := wyoming.NewWriter(conn).WriteEvent(wyoming.Describe{}.Event()); err != nil {
		log.Fatalf("failed to send describe: %v", err)
	}

	ev, err := wyoming.NewReader(conn, wyoming.DefaultLimits()).ReadEvent()
	if err != nil {
		log.Fatalf("failed to read reply: %v", err)
	}
	if ev.Type != wyoming.TypeInfo {
		log.Fatalf("unexpected reply type %q", ev.Type)
	}
	info, err := wyoming.InfoFromEvent(ev)
	if err != nil {
		log.Fatalf("failed to decode info: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		log.Fatal(err)
	}
}
