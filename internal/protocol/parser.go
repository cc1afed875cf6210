package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/muurk/freeathome/internal/project"
)

// DatapointUpdate is one (datapoint, value) pair from an update fragment
type DatapointUpdate struct {
	Serial    string
	Channel   string
	Datapoint string // e.g. "odp0002"
	Direction project.Direction
	Value     string
}

// ID returns the fully-qualified datapoint identifier serial/channel/datapoint
func (u DatapointUpdate) ID() string {
	return project.DatapointID(u.Serial, u.Channel, u.Datapoint)
}

// String returns a compact representation for logging
func (u DatapointUpdate) String() string {
	return fmt.Sprintf("%s=%q", u.ID(), u.Value)
}

// updateParser carries the element context while walking the token stream
type updateParser struct {
	stack     []string
	serial    string
	channel   string
	datapoint string
	direction project.Direction
	value     strings.Builder
	inValue   bool
	hasValue  bool
	updates   []DatapointUpdate
}

// ParseUpdate parses an <update> fragment into datapoint updates in document
// order. Datapoints without a <value> child are skipped. The fragment is
// parsed completely before returning, so an error means no pairs at all.
func ParseUpdate(data []byte) ([]DatapointUpdate, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newUpdateParseError("empty update fragment", nil)
	}

	p := &updateParser{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newUpdateParseError("malformed update XML", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(p.stack) == 0 {
				if sawRoot {
					return nil, newUpdateParseError("multiple root elements", nil)
				}
				if t.Name.Local != "update" {
					return nil, newUpdateParseError(fmt.Sprintf("unexpected root element <%s>", t.Name.Local), nil)
				}
				sawRoot = true
			}
			if err := p.start(t); err != nil {
				return nil, err
			}
		case xml.CharData:
			if p.inValue {
				p.value.Write(t)
			}
		case xml.EndElement:
			if err := p.end(); err != nil {
				return nil, err
			}
		}
	}

	if !sawRoot {
		return nil, newUpdateParseError("no <update> element", nil)
	}
	return p.updates, nil
}

func (p *updateParser) parent() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

func (p *updateParser) start(t xml.StartElement) error {
	name := t.Name.Local
	switch parent := p.parent(); {
	case name == "device" && parent == "update":
		p.serial = attr(t, "serialNumber")
		if p.serial == "" {
			return newUpdateParseError("device without serialNumber", nil)
		}
	case name == "channel" && parent == "channels":
		p.channel = attr(t, "i")
		if p.channel == "" {
			return newUpdateParseError(fmt.Sprintf("channel without id on device %s", p.serial), nil)
		}
	case name == "dataPoint" && (parent == "inputs" || parent == "outputs"):
		if p.serial == "" || p.channel == "" {
			return newUpdateParseError("datapoint outside of a device channel", nil)
		}
		p.datapoint = attr(t, "i")
		if p.datapoint == "" {
			return newUpdateParseError(fmt.Sprintf("datapoint without id on %s/%s", p.serial, p.channel), nil)
		}
		p.direction = project.Input
		if parent == "outputs" {
			p.direction = project.Output
		}
		p.value.Reset()
		p.hasValue = false
	case name == "value" && parent == "dataPoint":
		p.inValue = true
		p.hasValue = true
	}
	p.stack = append(p.stack, name)
	return nil
}

func (p *updateParser) end() error {
	if len(p.stack) == 0 {
		return newUpdateParseError("unbalanced end element", nil)
	}
	name := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]

	switch name {
	case "value":
		p.inValue = false
	case "dataPoint":
		if p.datapoint != "" && p.hasValue {
			p.updates = append(p.updates, DatapointUpdate{
				Serial:    p.serial,
				Channel:   p.channel,
				Datapoint: p.datapoint,
				Direction: p.direction,
				Value:     strings.TrimSpace(p.value.String()),
			})
		}
		p.datapoint = ""
		p.hasValue = false
	case "channel":
		p.channel = ""
	case "device":
		p.serial = ""
		p.channel = ""
	}
	return nil
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
