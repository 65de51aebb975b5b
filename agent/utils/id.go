package utils

import "github.com/google/uuid"

// UUID returns a new random id. DIDComm messages and queued records use it.
func UUID() string {
	return uuid.New().String()
}
