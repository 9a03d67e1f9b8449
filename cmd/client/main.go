// Command client is a thin line-oriented terminal client for GoChat, useful
// for development and protocol debugging. It sends stdin lines as frames
// verbatim and prints every server line to stdout.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/NicolasHaas/gochat/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:12345", "server address")
	flag.Parse()

	conn, err := dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()
	fmt.Fprintf(os.Stderr, "connected to %s\n", *addr)

	// Server lines to stdout until the connection drops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := protocol.NewReader(conn)
		for {
			line, err := r.ReadLine()
			if err != nil {
				if err != io.EOF {
					fmt.Fprintf(os.Stderr, "read: %v\n", err)
				}
				return
			}
			fmt.Println(line)
		}
	}()

	// Stdin lines to the server.
	go func() {
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			if err := protocol.WriteFrame(conn, in.Text()); err != nil {
				fmt.Fprintf(os.Stderr, "write: %v\n", err)
				return
			}
		}
		_ = conn.Close()
	}()

	<-done
}

// dial connects with exponential backoff so the client survives racing a
// server that is still binding its listener.
func dial(addr string) (net.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	return backoff.RetryWithData(func() (net.Conn, error) {
		return net.Dial("tcp", addr)
	}, policy)
}
