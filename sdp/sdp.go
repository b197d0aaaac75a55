// Package sdp implements the Session Description Protocol.
// https://datatracker.ietf.org/doc/html/rfc4566
package sdp

import "strings"

const MimeType = "application/sdp"

type Origin struct {
	Username       string
	SessionID      int64
	SessionVersion int64
	NetType        string
	AddrType       string
	Address        string
}

type Connection struct {
	NetType  string
	AddrType string
	Address  string
}

func (c Connection) isSet() bool {
	return c.NetType != "" && c.AddrType != "" && c.Address != ""
}

type Bandwidth struct {
	Type  string
	Value string
}

// Repeat is a "r=" line. All values are in seconds.
type Repeat struct {
	Interval int64
	Duration int64
	Offsets  []int64
}

// Time is a "t=" line followed by its "r=" lines.
type Time struct {
	Start   int64
	Stop    int64
	Repeats []Repeat
}

type ZoneAdjustment struct {
	Adjust int64
	Offset int64
}

// Media is a media description started by the "m=" line.
type Media struct {
	Type          string
	Port          int
	PortCount     int
	Proto         string
	Formats       []int
	Title         string
	Connection    Connection
	Bandwidths    []Bandwidth
	EncryptionKey string
	Attributes    []string
}

// Attr returns the value of the first attribute "key:value".
func (m *Media) Attr(key string) (string, bool) {
	return lookupAttr(m.Attributes, key)
}

// HasFlag reports whether the media has the property attribute flag.
func (m *Media) HasFlag(flag string) bool {
	return hasFlag(m.Attributes, flag)
}

// Descriptor is a parsed session description.
// Optional string fields are empty when absent.
type Descriptor struct {
	Version         int
	Origin          Origin
	SessionName     string
	Information     string
	URI             string
	Emails          []string
	Phones          []string
	Connection      Connection
	Bandwidths      []Bandwidth
	Times           []Time
	ZoneAdjustments []ZoneAdjustment
	EncryptionKey   string
	Attributes      []string
	Medias          []*Media
}

// Attr returns the value of the first session-level attribute "key:value".
func (d *Descriptor) Attr(key string) (string, bool) {
	return lookupAttr(d.Attributes, key)
}

// HasFlag reports whether the session has the property attribute flag.
func (d *Descriptor) HasFlag(flag string) bool {
	return hasFlag(d.Attributes, flag)
}

// MediasOfType returns medias with the given type in source order.
func (d *Descriptor) MediasOfType(mediaType string) []*Media {
	var result []*Media

	for _, m := range d.Medias {
		if m.Type == mediaType {
			result = append(result, m)
		}
	}

	return result
}

func lookupAttr(attributes []string, key string) (string, bool) {
	prefix := key + ":"

	for _, a := range attributes {
		if strings.HasPrefix(a, prefix) {
			return a[len(prefix):], true
		}
	}

	return "", false
}

func hasFlag(attributes []string, flag string) bool {
	for _, a := range attributes {
		if a == flag {
			return true
		}
	}

	return false
}
