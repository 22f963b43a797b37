package domain

import "fmt"

// Status is the lifecycle state of a payment request. The integer values are
// the ones persisted in storage and exposed over the API.
type Status int

const (
	StatusPending   Status = 0
	StatusSuccess   Status = 1
	StatusExpired   Status = 2
	StatusCancelled Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusExpired:
		return "expired"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusExpired || s == StatusCancelled
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusCancelled
}
