package portal

import (
	"context"
	"net/http"
	"net/url"

	portalcache "github.com/always-cache/portal-cache"
	"github.com/always-cache/portal-cache/record"
)

func (c *Client) Notifications(ctx context.Context, refetch bool) ([]record.Notification, error) {
	token, e := c.token("notifications")
	if e != nil {
		return nil, e
	}
	items, _, err := fetchRecord(ctx, c, read[[]record.Notification]{
		call: "notifications",
		req: portalcache.Request{
			Method:  http.MethodPost,
			URL:     c.url("/src/notificationstatus.php"),
			Cookies: c.sessionCookies(token),
		},
		opts: []portalcache.Option{
			portalcache.WithTimeout(profileTimeout),
			portalcache.WithRefetch(refetch),
		},
		decode:        record.DecodeNotifications,
		invalidJSON:   fail(http.StatusBadRequest, "Invalid response from server"),
		invalidRecord: fail(http.StatusBadRequest, "Invalid or expired session"),
	})
	return items, err
}

func (c *Client) PracticalTimetable(ctx context.Context, refetch bool) (record.PracticalTimetable, error) {
	token, e := c.token("practical-timetable")
	if e != nil {
		return record.PracticalTimetable{}, e
	}
	tt, _, err := fetchRecord(ctx, c, read[record.PracticalTimetable]{
		call: "practical-timetable",
		req: portalcache.Request{
			Method:  http.MethodPost,
			URL:     c.url("/src/practicaltimetable.php"),
			Form:    url.Values{"screen": {"examtimetable"}},
			Cookies: c.sessionCookies(token),
		},
		opts: []portalcache.Option{
			portalcache.WithTimeout(profileTimeout),
			portalcache.WithRefetch(refetch),
		},
		decode:        record.DecodePracticalTimetable,
		invalidJSON:   fail(http.StatusBadRequest, "Malformed JSON from server"),
		invalidRecord: fail(http.StatusNotFound, "Invalid or expired session / malformed data"),
	})
	return tt, err
}
