package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	responseTimeHeaderName = "Portal-Cache-Response-Time"
	requestTimeHeaderName  = "Portal-Cache-Request-Time"
)

// StoredResponse is the part of an upstream exchange kept in the cache.
type StoredResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// The value of the clock at the time of the request that resulted in the stored response.
	RequestTime time.Time
	// The value of the clock at the time the response was received.
	ResponseTime time.Time
}

// StoredResponseToBytes returns the HTTP/1.1 representation of the response,
// with the request and response times carried in extra headers.
func StoredResponseToBytes(sRes StoredResponse) ([]byte, error) {
	header := sRes.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	// the body is stored as received, length is set below
	header.Del("Content-Length")
	header.Del("Transfer-Encoding")
	header.Set(responseTimeHeaderName, strconv.FormatInt(sRes.ResponseTime.UnixMilli(), 10))
	header.Set(requestTimeHeaderName, strconv.FormatInt(sRes.RequestTime.UnixMilli(), 10))

	res := &http.Response{
		StatusCode:    sRes.StatusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(sRes.Body)),
		ContentLength: int64(len(sRes.Body)),
	}
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BytesToStoredResponse reverses StoredResponseToBytes.
func BytesToStoredResponse(b []byte) (StoredResponse, error) {
	sRes := StoredResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return sRes, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return sRes, err
	}
	resTime, err := parseMillis(res.Header.Get(responseTimeHeaderName))
	if err != nil {
		return sRes, err
	}
	reqTime, err := parseMillis(res.Header.Get(requestTimeHeaderName))
	if err != nil {
		return sRes, err
	}
	// delete extra headers
	res.Header.Del(responseTimeHeaderName)
	res.Header.Del(requestTimeHeaderName)
	res.Header.Del("Content-Length")

	sRes.StatusCode = res.StatusCode
	sRes.Header = res.Header
	sRes.Body = body
	sRes.ResponseTime = resTime
	sRes.RequestTime = reqTime
	return sRes, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stored time %q: %w", v, err)
	}
	return time.UnixMilli(ms), nil
}
