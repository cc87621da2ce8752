package message

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Headers whose values may be comma-folded onto one line (RFC 3261 7.3.1).
var listHeaders = map[string]bool{
	"via":          true,
	"route":        true,
	"record-route": true,
	"contact":      true,
}

// Parse turns a raw datagram or stream frame into a SIPMessage.
func Parse(data []byte) (*SIPMessage, error) {
	reader := bufio.NewReader(bytes.NewReader(data))

	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading start line: %w", err)
	}
	startLine := strings.TrimSpace(line)

	var msg SIPMessage
	if strings.HasPrefix(startLine, "SIP/") {
		// It's a response
		parts := strings.SplitN(startLine, " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed response start line %q", startLine)
		}
		statusCode, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid status code in %q: %w", startLine, err)
		}
		reason := ""
		if len(parts) == 3 {
			reason = parts[2]
		}
		msg.Startline.Response = &Response{StatusCode: statusCode, ReasonPhrase: reason}
	} else {
		// It's a request
		parts := strings.Fields(startLine)
		if len(parts) != 3 || !strings.HasPrefix(parts[2], "SIP/") {
			return nil, fmt.Errorf("malformed request start line %q", startLine)
		}
		msg.Startline.Request = &Request{Method: parts[0], RequestURI: parts[1]}
	}

	msg.Headers = make(map[string][]string)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if strings.TrimSpace(line) != "" {
				return nil, fmt.Errorf("unterminated header line %q", strings.TrimSpace(line))
			}
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break // end of headers
		}
		colon := strings.Index(line, ":")
		if colon == -1 {
			return nil, fmt.Errorf("malformed header line %q", line)
		}

		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])
		if listHeaders[key] {
			for _, v := range strings.Split(value, ",") {
				v = strings.TrimSpace(v)
				if v != "" {
					msg.Headers[key] = append(msg.Headers[key], v)
				}
			}
		} else {
			msg.Headers[key] = append(msg.Headers[key], value)
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > 0 {
		msg.Body = body
	}

	return &msg, nil
}
