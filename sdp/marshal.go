package sdp

import (
	"strconv"
	"strings"
)

type writer struct {
	strings.Builder
}

func (w *writer) line(key byte, values ...string) {
	w.WriteByte(key)
	w.WriteByte('=')
	for _, v := range values {
		w.WriteString(v)
	}
	w.WriteString("\r\n")
}

func (w *writer) optional(key byte, value string) {
	if value != "" {
		w.line(key, value)
	}
}

func (w *writer) repeated(key byte, values []string) {
	for _, v := range values {
		w.line(key, v)
	}
}

func (w *writer) connection(c Connection) {
	if c.isSet() {
		w.line('c', c.NetType, " ", c.AddrType, " ", c.Address)
	}
}

func (w *writer) bandwidths(list []Bandwidth) {
	for _, b := range list {
		w.line('b', b.Type, ":", b.Value)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func (w *writer) media(m *Media) {
	port := strconv.Itoa(m.Port)
	if m.PortCount != 0 {
		port += "/" + strconv.Itoa(m.PortCount)
	}

	values := []string{m.Type, " ", port, " ", m.Proto}
	for _, f := range m.Formats {
		values = append(values, " ", strconv.Itoa(f))
	}
	w.line('m', values...)

	w.optional('i', m.Title)
	w.connection(m.Connection)
	w.bandwidths(m.Bandwidths)
	w.optional('k', m.EncryptionKey)
	w.repeated('a', m.Attributes)
}

// String returns the session description text in the order required by
// Parse. Time values are written in seconds.
func (d *Descriptor) String() string {
	w := &writer{}

	w.line('v', strconv.Itoa(d.Version))

	o := &d.Origin
	w.line('o', o.Username, " ", itoa(o.SessionID), " ", itoa(o.SessionVersion),
		" ", o.NetType, " ", o.AddrType, " ", o.Address)

	w.line('s', d.SessionName)
	w.optional('i', d.Information)
	w.optional('u', d.URI)
	w.repeated('e', d.Emails)
	w.repeated('p', d.Phones)
	w.connection(d.Connection)
	w.bandwidths(d.Bandwidths)

	for _, t := range d.Times {
		w.line('t', itoa(t.Start), " ", itoa(t.Stop))

		for _, r := range t.Repeats {
			values := []string{itoa(r.Interval), " ", itoa(r.Duration)}
			for _, offset := range r.Offsets {
				values = append(values, " ", itoa(offset))
			}
			w.line('r', values...)
		}
	}

	if len(d.ZoneAdjustments) != 0 {
		var values []string
		for i, z := range d.ZoneAdjustments {
			if i != 0 {
				values = append(values, " ")
			}
			values = append(values, itoa(z.Adjust), " ", itoa(z.Offset))
		}
		w.line('z', values...)
	}

	w.optional('k', d.EncryptionKey)
	w.repeated('a', d.Attributes)

	for _, m := range d.Medias {
		w.media(m)
	}

	return w.String()
}
