package client

import (
	"errors"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/mslinn/bm-console/pkg/apierr"
)

func wrapError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, NewErrorFromRestyResponse(res)
	}
	return res, nil
}

// NewErrorFromRestyResponse decodes the server's error body. Bodies that
// are not JSON (unknown routes) are kept verbatim as the detail.
func NewErrorFromRestyResponse(res *resty.Response) *apierr.StatusError {
	body := res.Body()
	reason, detail := apierr.ReasonUnknown, strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		if r := parsed.Get("reason"); r.Exists() {
			reason = apierr.Reason(r.String())
		}
		if m := parsed.Get("message"); m.Exists() {
			detail = m.String()
		}
	}
	method := ""
	if res.Request != nil {
		method = res.Request.Method
	}
	return apierr.FromStatus(res.StatusCode(), method, reason, detail)
}

// IsNotFound reports whether err means the resource does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, apierr.ErrNotFound)
}

// IsConflict reports whether err means the version sent was stale
func IsConflict(err error) bool {
	return errors.Is(err, apierr.ErrConflict)
}
