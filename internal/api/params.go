package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	MsgInvalidJSON     = "Invalid JSON data"
	MsgRequestTooLarge = "Request too large."
)

var (
	errInvalidJSON = errors.New(MsgInvalidJSON)
	errTooLarge    = errors.New(MsgRequestTooLarge)
)

// requestParams is the flattened parameter set of one request. Query values
// are defaults; body values win for the same key.
type requestParams struct {
	values map[string]string
	body   []byte
	isJSON bool
}

func (p requestParams) get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p.values[k]); v != "" {
			return v
		}
	}
	return ""
}

// decodeBody unmarshals the raw JSON body into v.
func (p requestParams) decodeBody(v any) error {
	if !p.isJSON || len(p.body) == 0 {
		return errInvalidJSON
	}
	if err := json.Unmarshal(p.body, v); err != nil {
		return errInvalidJSON
	}
	return nil
}

func parseParams(c *gin.Context, limit int64) (requestParams, error) {
	p := requestParams{values: make(map[string]string)}
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			p.values[k] = vs[0]
		}
	}
	if c.Request.Method != http.MethodPost || c.Request.Body == nil {
		return p, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if strings.Contains(contentType, "application/json") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return p, readError(err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return p, nil
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return p, errInvalidJSON
		}
		p.body = body
		p.isJSON = true
		for k, raw := range fields {
			if v, ok := scalarString(raw); ok {
				p.values[k] = v
			}
		}
		return p, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return p, readError(err)
	}
	for k, vs := range c.Request.PostForm {
		if len(vs) > 0 {
			p.values[k] = vs[0]
		}
	}
	return p, nil
}

// scalarString renders JSON strings, numbers and booleans as text. Objects,
// arrays and null are left to decodeBody.
func scalarString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[', 'n':
		return "", false
	default:
		return string(trimmed), true
	}
}

func readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errTooLarge
	}
	return err
}
