/*
Package agent holds the DIDComm transport layer packages. The package itself
is empty, and all the functionality is inside the sub-packages.

The packager packs and unpacks the envelopes, and comm has the Dispatcher
which runs the inbound and outbound pipelines. The trans registry keeps the
transport sessions, which are the HTTP requests and websocket connections
the messages arrive in, so that replies can be return routed. The agency
package has the agent contexts the Dispatcher resolves for the messages, and
prot is the registry of the protocol handlers.

The mediator and pickup packages implement a DIDComm mediator: forward
messages are queued per connection until the recipient picks them up.
*/
package agent
