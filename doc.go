/*
Package main is an application package of the Findy DIDComm mediator. The
module implements the DIDComm message transport of an agent: the envelope
codec, the transport sessions, the inbound and outbound pipelines, and the
mediator's forward queue with the pickup protocol v2.

You can use the module roughly for two purposes:

1. As a mediator service which queues the forward messages of its
connections until they pick them up over HTTP or websocket, or which pushes
them over a live mode session.

2. As a Go library for the DIDComm transport layer. The agent/comm package has
the Dispatcher which the protocol implementations use to receive and send
messages, and agent/pickup has the recipient side of the pickup protocol.

# About the build-in CLI

The CLI is built with cobra and viper. Every flag can be given as an
environment variable as well, e.g. FCLI_MEDIATOR_SERVER_PORT, or in the YAML
config file given with --config. The same file has the connections: list of
the mediator.

	findy-didcomm mediator start --config mediator.yaml
	findy-didcomm mediator ping --base-address http://localhost:8080
	findy-didcomm tools key create --seed 00000000000000000000thisisa_test
*/
package main
