package record

import "strconv"

// Ack is the status envelope the portal answers logins and mutations with.
type Ack struct {
	Status string `json:"status"`
	// -1 when the upstream sent no usable error_code.
	ErrorCode int    `json:"error_code"`
	Message   string `json:"msg"`
}

// DecodeAck reads status, error_code and msg (or message) from a JSON object.
func DecodeAck(raw []byte) (Ack, bool) {
	m, ok := parseObject(raw)
	if !ok {
		return Ack{}, false
	}
	ack := Ack{Status: opt(m, "status"), ErrorCode: -1}
	if s, ok := str(m, "error_code"); ok {
		if code, err := strconv.Atoi(s); err == nil {
			ack.ErrorCode = code
		}
	}
	ack.Message = opt(m, "msg")
	if ack.Message == "" {
		ack.Message = opt(m, "message")
	}
	return ack, true
}

func (a Ack) Success() bool {
	return a.Status == "success"
}

// MessageOr returns the upstream message, or def when there is none.
func (a Ack) MessageOr(def string) string {
	if a.Message == "" {
		return def
	}
	return a.Message
}
