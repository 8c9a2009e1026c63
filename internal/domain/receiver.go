package domain

import (
	"fmt"
	"strconv"
)

// ReceiverType separates the independent identity spaces
type ReceiverType string

const (
	ReceiverEmployee ReceiverType = "employee"
	ReceiverUser     ReceiverType = "user"
)

// Valid reports whether t is a known receiver type
func (t ReceiverType) Valid() bool {
	return t == ReceiverEmployee || t == ReceiverUser
}

// Receiver identifies who a notification is for. An employee and an admin
// user sharing the same id value are different receivers.
type Receiver struct {
	ID   string       `json:"receiverId"`
	Type ReceiverType `json:"receiverType"`
}

// String returns "type:id"
func (r Receiver) String() string {
	return string(r.Type) + ":" + r.ID
}

// Employee builds an employee receiver
func Employee(id string) Receiver {
	return Receiver{ID: id, Type: ReceiverEmployee}
}

// User builds an admin/user receiver
func User(id string) Receiver {
	return Receiver{ID: id, Type: ReceiverUser}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}
