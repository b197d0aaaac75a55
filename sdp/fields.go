package sdp

import (
	"fmt"
	"strconv"
	"strings"
)

// fields splits a value into sep-delimited typed fields.
// Repeated separators are treated as one.
type fields struct {
	s   string
	sep byte
}

// seconds marks a destination as a time value with an optional
// d/h/m unit suffix.
type seconds struct {
	v *int64
}

func newFields(s string, sep byte) *fields {
	f := &fields{s: s, sep: sep}
	f.skip()
	return f
}

func (f *fields) skip() {
	for f.s != "" && f.s[0] == f.sep {
		f.s = f.s[1:]
	}
}

func (f *fields) empty() bool {
	return f.s == ""
}

func (f *fields) next() string {
	var token string

	if i := strings.IndexByte(f.s, f.sep); i >= 0 {
		token, f.s = f.s[:i], f.s[i:]
	} else {
		token, f.s = f.s, ""
	}

	f.skip()

	return token
}

// scan consumes one field per destination. Supported destinations are
// *string, *int (32-bit), *int64 and seconds.
func (f *fields) scan(dst ...interface{}) error {
	for _, d := range dst {
		token := f.next()

		switch v := d.(type) {
		case *string:
			*v = token

		case *int:
			n, err := strconv.ParseInt(token, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid integer %q", token)
			}
			*v = int(n)

		case *int64:
			n, err := strconv.ParseInt(token, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer %q", token)
			}
			*v = n

		case seconds:
			n, err := parseSeconds(token)
			if err != nil {
				return err
			}
			*v.v = n

		default:
			panic(fmt.Sprintf("sdp: unsupported field type %T", d))
		}
	}

	return nil
}

func parseSeconds(token string) (int64, error) {
	var unit int64 = 1

	if token != "" {
		switch token[len(token)-1] {
		case 'd':
			unit = 86400
		case 'h':
			unit = 3600
		case 'm':
			unit = 60
		}

		if unit != 1 {
			token = token[:len(token)-1]
		}
	}

	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", token)
	}

	return n * unit, nil
}
