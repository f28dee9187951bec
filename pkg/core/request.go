package core

import (
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"strings"
)

type Params map[string]any

// Request describes one logical API call. Path is relative to APIPrefix.
// A zero RetryBudget means the configured default. A string or []byte Body is
// sent verbatim and must be valid JSON; other values are marshalled.
type Request struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       Params            `json:"query,omitempty"`
	Body        any               `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RetryBudget int               `json:"retry_budget,omitempty"`
}

func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Query:   make(Params),
		Headers: make(map[string]string),
	}
}

func (r *Request) SetQuery(key string, value any) *Request {
	if r.Query == nil {
		r.Query = make(Params)
	}
	r.Query[key] = value
	return r
}

func (r *Request) SetQueryParams(params Params) *Request {
	if r.Query == nil {
		r.Query = make(Params)
	}
	maps.Copy(r.Query, params)
	return r
}

func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetHeaders(headers map[string]string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	maps.Copy(r.Headers, headers)
	return r
}

func (r *Request) SetRetryBudget(budget int) *Request {
	r.RetryBudget = budget
	return r
}

// SignedPath returns APIPrefix + Path plus the encoded query. The result is
// both the signed path and the transmitted request URI, so query keys are
// sorted to keep it stable.
func (r *Request) SignedPath() string {
	path := r.Path
	if !strings.HasPrefix(path, APIPrefix) {
		path = APIPrefix + path
	}
	if len(r.Query) == 0 {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + encodeQuery(r.Query)
}

// encodeQuery is url.Values.Encode with commas left unescaped, as OKX
// documents list parameters like ccy=BTC,ETH.
func encodeQuery(params Params) string {
	values := make(url.Values, len(params))
	for k, v := range ParamsToStringMap(params) {
		values.Set(k, v)
	}
	return strings.ReplaceAll(values.Encode(), "%2C", ",")
}

// ParamsToStringMap formats each value the way OKX expects it on the query string.
func ParamsToStringMap(params Params) map[string]string {
	result := make(map[string]string, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case float64:
			result[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			result[k] = strconv.FormatBool(val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}
