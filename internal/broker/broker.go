// Package broker abstracts the venue connection the order adapter talks
// to. The adapter only ever sees the Channel interface; concrete channels
// are the in-process simulator and the JSON wire session.
package broker

import "main/internal/schema"

// Channel is a command/response session with one venue.
type Channel interface {
	// Send transmits one command. An error means the command never left
	// the process; asynchronous failures arrive on Responses.
	Send(cmd schema.OrderCommand) error

	// Responses delivers acks, rejects and fills. The channel closes when
	// the session ends.
	Responses() <-chan schema.BrokerResponse

	Close() error
}
