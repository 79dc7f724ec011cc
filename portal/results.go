package portal

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	portalcache "github.com/always-cache/portal-cache"
	"github.com/always-cache/portal-cache/record"
)

func (c *Client) resultsRequest(token string, params url.Values) portalcache.Request {
	return portalcache.Request{
		Method:  http.MethodGet,
		URL:     c.url("/src/results_new.php"),
		Params:  params,
		Cookies: c.sessionCookies(token),
	}
}

// envelopeOK rejects result lists the portal flags with a non-zero error_code,
// which is what an expired session looks like.
func envelopeOK(raw []byte) *Error {
	ack, ok := record.DecodeAck(raw)
	if !ok || ack.ErrorCode != 0 {
		return fail(http.StatusForbidden, "Invalid or expired session")
	}
	return nil
}

// Results lists every published result of the student.
func (c *Client) Results(ctx context.Context, refetch bool) ([]record.StudentResult, error) {
	token, e := c.token("results")
	if e != nil {
		return nil, e
	}
	results, _, err := fetchRecord(ctx, c, read[[]record.StudentResult]{
		call: "results",
		req:  c.resultsRequest(token, url.Values{"a": {"getResAll"}}),
		opts: []portalcache.Option{
			portalcache.WithTimeout(resultTimeout),
			portalcache.WithRefetch(refetch),
		},
		decode:        record.DecodeStudentResults,
		check:         envelopeOK,
		invalidJSON:   fail(http.StatusBadGateway, "Malformed JSON from server"),
		invalidRecord: fail(http.StatusUnprocessableEntity, "No valid results found"),
	})
	if err != nil {
		return nil, err
	}
	c.log.Info().Int("count", len(results)).Msg("Results fetched")
	return results, nil
}

// ExamResult returns the marks card of one exam.
func (c *Client) ExamResult(ctx context.Context, examCode string, refetch bool) (record.ExamResult, error) {
	examCode = strings.TrimSpace(examCode)
	if examCode == "" {
		return record.ExamResult{}, fail(http.StatusBadRequest, "exam_code is required")
	}
	token, e := c.token("exam-result")
	if e != nil {
		return record.ExamResult{}, e
	}
	res, _, err := fetchRecord(ctx, c, read[record.ExamResult]{
		call: "exam-result",
		req:  c.resultsRequest(token, url.Values{"a": {"getResults"}, "examno": {examCode}}),
		opts: []portalcache.Option{
			portalcache.WithTimeout(resultTimeout),
			portalcache.WithRefetch(refetch),
		},
		decode:        record.DecodeExamResult,
		invalidJSON:   fail(http.StatusBadGateway, "Malformed JSON from server"),
		invalidRecord: fail(http.StatusUnprocessableEntity, "Exam result data is incomplete"),
	})
	return res, err
}

// DetailedExamResult returns the per subject breakdown of one exam.
func (c *Client) DetailedExamResult(ctx context.Context, examCode string, refetch bool) (record.DetailedResult, error) {
	examCode = strings.TrimSpace(examCode)
	if examCode == "" {
		return record.DetailedResult{}, fail(http.StatusBadRequest, "exam_code is required")
	}
	token, e := c.token("detailed-result")
	if e != nil {
		return record.DetailedResult{}, e
	}
	res, _, err := fetchRecord(ctx, c, read[record.DetailedResult]{
		call: "detailed-result",
		req:  c.resultsRequest(token, url.Values{"a": {"getResDet"}, "examno": {examCode}}),
		opts: []portalcache.Option{
			portalcache.WithTimeout(resultTimeout),
			portalcache.WithRefetch(refetch),
		},
		decode:        record.DecodeDetailedResult,
		invalidJSON:   fail(http.StatusBadGateway, "Malformed JSON from server"),
		invalidRecord: fail(http.StatusNotFound, "No detailed result found for this exam"),
	})
	return res, err
}
