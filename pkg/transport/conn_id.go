package transport

import "github.com/google/uuid"

func newConnID() string {
	return uuid.NewString()
}
