package redisconn

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// decoder turns bulk string replies into the caller's representation.
// With no encoding configured replies stay raw []byte.
type decoder func(string) (any, error)

func newDecoder(encoding string) (decoder, error) {
	switch strings.ToLower(encoding) {
	case "":
		return func(s string) (any, error) { return []byte(s), nil }, nil
	case "utf-8", "utf8", "ascii":
		return func(s string) (any, error) { return s, nil }, nil
	case "latin-1", "iso-8859-1":
		dec := charmap.ISO8859_1.NewDecoder()
		return func(s string) (any, error) {
			return dec.String(s)
		}, nil
	default:
		return nil, fmt.Errorf("redisconn: unsupported encoding %q", encoding)
	}
}

// decode applies d to every string inside v, descending into arrays.
func (d decoder) decode(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return d(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			dv, err := d.decode(item)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	default:
		return v, nil
	}
}
