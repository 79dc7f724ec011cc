package record

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Date  string `json:"date"`
}

// DecodeNotifications decodes the notification list. The payload itself must be
// a list; items lacking title, body or date are skipped.
func DecodeNotifications(raw []byte) ([]Notification, bool) {
	v, ok := parse(raw)
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Notification, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fields, ok := required(m, "ftitle", "fbody", "fpushdate")
		if !ok {
			continue
		}
		out = append(out, Notification{Title: fields[0], Body: fields[1], Date: fields[2]})
	}
	return out, true
}
