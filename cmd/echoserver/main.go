// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

// Example: a TCP echo server built on eventloop+connection, the Go
// successor to the teacher's examples/reactor_echo — one loop, one Mux,
// raw fds registered directly instead of going through net.Conn's own
// read/write path.
package main

import (
	"flag"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/ooScott/rct/connection"
	"github.com/ooScott/rct/eventloop"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9002", "listen address")
	flag.Parse()

	loop, err := eventloop.New(eventloop.MainEventLoop | eventloop.EnableSigIntHandler | eventloop.EnableSigTermHandler)
	if err != nil {
		log.Fatal().Err(err).Msg("eventloop.New")
	}
	defer loop.Close()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Msg("echoserver: listening")

	go acceptLoop(ln, loop)

	loop.Exec(0)
}

func acceptLoop(ln net.Listener, loop *eventloop.Loop) {
	for {
		raw, err := ln.Accept()
		if err != nil {
			log.Error().Err(err).Msg("echoserver: accept")
			return
		}
		loop.Post(func() {
			conn, err := connection.Wrap(loop, raw)
			if err != nil {
				log.Error().Err(err).Msg("echoserver: wrap")
				raw.Close()
				return
			}
			conn.OnNewMessage = func(msg connection.Message, c *connection.Connection) {
				raw := msg.(*connection.RawMessage)
				c.Send(raw.ID, raw.Payload)
			}
			conn.OnDisconnected = func(c *connection.Connection) {
				log.Info().Msg("echoserver: client disconnected")
			}
		})
	}
}
