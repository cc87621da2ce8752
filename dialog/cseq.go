package dialog

import (
	"fmt"
	"strconv"
	"strings"
)

// MalformedHeaderError reports a header whose value could not be parsed.
type MalformedHeaderError struct {
	Name  string
	Value string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed %s header %q", e.Name, e.Value)
}

// SequenceCounter tracks the CSeq number and method for one dialog.
type SequenceCounter struct {
	Number int
	Method string
}

// ParseCSeq splits a CSeq header value into its number and method.
func ParseCSeq(header string) (SequenceCounter, error) {
	var counter SequenceCounter

	fields := strings.Fields(header)
	if len(fields) == 0 {
		return counter, &MalformedHeaderError{Name: "CSeq", Value: header}
	}
	number, err := strconv.Atoi(fields[0])
	if err != nil {
		return counter, &MalformedHeaderError{Name: "CSeq", Value: header}
	}

	counter.Number = number
	if len(fields) > 1 {
		counter.Method = fields[1]
	}
	return counter, nil
}

// Increment bumps the sequence number and returns the rendered header value.
func (c *SequenceCounter) Increment() string {
	c.Number++
	return c.String()
}

func (c *SequenceCounter) String() string {
	return fmt.Sprintf("%d %s", c.Number, c.Method)
}
