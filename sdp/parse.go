package sdp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrParse = errors.New("sdp parse error")

type parser struct {
	text  string
	line  int
	key   byte
	value string
	err   error
}

// next loads the next "k=v" entry. key is 0 at the end of text or on error.
func (p *parser) next() {
	p.key, p.value = 0, ""

	for p.text != "" && p.err == nil {
		var line string
		if i := strings.IndexByte(p.text, '\n'); i >= 0 {
			line, p.text = p.text[:i], p.text[i+1:]
		} else {
			line, p.text = p.text, ""
		}

		line = strings.TrimSuffix(line, "\r")
		p.line++

		if line == "" {
			continue
		}

		if len(line) < 2 || line[1] != '=' {
			p.fail("invalid entry %q", line)
			return
		}

		p.key, p.value = line[0], line[2:]
		return
	}
}

func (p *parser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: line %d: %s", ErrParse, p.line, fmt.Sprintf(format, args...))
	}
}

func (p *parser) expect(key byte) bool {
	if p.key != key {
		if p.err == nil {
			if p.key == 0 {
				p.fail("missing %c= entry", key)
			} else {
				p.fail("expected %c= but got %c=", key, p.key)
			}
		}
		return false
	}

	return true
}

func (p *parser) scan(value string, sep byte, dst ...interface{}) *fields {
	f := newFields(value, sep)
	if err := f.scan(dst...); err != nil {
		p.fail("%c=: %s", p.key, err)
	}

	return f
}

func (p *parser) optional(key byte, field *string) {
	if p.key == key {
		*field = p.value
		p.next()
	}
}

func (p *parser) repeated(key byte, list *[]string) {
	for p.key == key {
		*list = append(*list, p.value)
		p.next()
	}
}

func (p *parser) connection(c *Connection) {
	if p.key == 'c' {
		p.scan(p.value, ' ', &c.NetType, &c.AddrType, &c.Address)
		if !c.isSet() {
			p.fail("c=: invalid connection %q", p.value)
		}
		p.next()
	}
}

func (p *parser) bandwidths(list *[]Bandwidth) {
	for p.key == 'b' {
		var b Bandwidth
		p.scan(p.value, ':', &b.Type, &b.Value)
		*list = append(*list, b)
		p.next()
	}
}

func (p *parser) times(d *Descriptor) {
	if !p.expect('t') {
		return
	}

	for p.key == 't' && p.err == nil {
		var t Time
		p.scan(p.value, ' ', seconds{&t.Start}, seconds{&t.Stop})
		p.next()

		for p.key == 'r' && p.err == nil {
			var r Repeat
			f := p.scan(p.value, ' ', seconds{&r.Interval}, seconds{&r.Duration})
			for !f.empty() && p.err == nil {
				var offset int64
				if err := f.scan(seconds{&offset}); err != nil {
					p.fail("r=: %s", err)
				}
				r.Offsets = append(r.Offsets, offset)
			}
			t.Repeats = append(t.Repeats, r)
			p.next()
		}

		d.Times = append(d.Times, t)
	}
}

func (p *parser) zoneAdjustments(d *Descriptor) {
	if p.key != 'z' {
		return
	}

	f := newFields(p.value, ' ')
	for !f.empty() && p.err == nil {
		var z ZoneAdjustment
		if err := f.scan(seconds{&z.Adjust}, seconds{&z.Offset}); err != nil {
			p.fail("z=: %s", err)
		}
		d.ZoneAdjustments = append(d.ZoneAdjustments, z)
	}

	p.next()
}

func (p *parser) media() *Media {
	m := &Media{}

	// m=<media> <port>[/<number of ports>] <proto> <fmt> ...
	var port string
	f := p.scan(p.value, ' ', &m.Type, &port, &m.Proto)
	if m.Type == "" || m.Proto == "" {
		p.fail("m=: invalid media %q", p.value)
	}

	port, count, ok := strings.Cut(port, "/")
	if v, err := strconv.Atoi(port); err == nil {
		m.Port = v
	} else {
		p.fail("m=: invalid port %q", port)
	}

	if ok {
		if v, err := strconv.Atoi(count); err == nil {
			m.PortCount = v
		} else {
			p.fail("m=: invalid port count %q", count)
		}
	}

	for !f.empty() && p.err == nil {
		var format int
		if err := f.scan(&format); err != nil {
			p.fail("m=: %s", err)
		}
		m.Formats = append(m.Formats, format)
	}

	p.next()

	p.optional('i', &m.Title)
	p.connection(&m.Connection)
	p.bandwidths(&m.Bandwidths)
	p.optional('k', &m.EncryptionKey)
	p.repeated('a', &m.Attributes)

	return m
}

func (p *parser) parse() *Descriptor {
	d := &Descriptor{}

	p.next()

	// Protocol version. Only 0 is supported
	if !p.expect('v') {
		return nil
	}
	if p.value != "0" {
		p.fail("unsupported version %q", p.value)
		return nil
	}
	p.next()

	// Origin
	if !p.expect('o') {
		return nil
	}
	o := &d.Origin
	p.scan(p.value, ' ', &o.Username, &o.SessionID, &o.SessionVersion,
		&o.NetType, &o.AddrType, &o.Address)
	p.next()

	// Session name
	if !p.expect('s') {
		return nil
	}
	d.SessionName = p.value
	p.next()

	p.optional('i', &d.Information)
	p.optional('u', &d.URI)
	p.repeated('e', &d.Emails)
	p.repeated('p', &d.Phones)
	p.connection(&d.Connection)
	p.bandwidths(&d.Bandwidths)
	p.times(d)
	p.zoneAdjustments(d)
	p.optional('k', &d.EncryptionKey)
	p.repeated('a', &d.Attributes)

	for p.key == 'm' && p.err == nil {
		d.Medias = append(d.Medias, p.media())
	}

	if p.key != 0 {
		p.fail("unexpected %c= entry", p.key)
	}

	if p.err != nil {
		return nil
	}

	return d
}

// Parse parses a session description.
// Either every mandatory field is present and the descriptor is complete
// or an error wrapping ErrParse is returned.
func Parse(text string) (*Descriptor, error) {
	p := &parser{text: text}

	d := p.parse()
	if p.err != nil {
		return nil, p.err
	}

	return d, nil
}
