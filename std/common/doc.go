// Package common has the generic DIDComm messages every agent understands:
// routing forward, problem report and ack.
package common
