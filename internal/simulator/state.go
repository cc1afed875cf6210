package simulator

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/muurk/freeathome/internal/project"
	"github.com/muurk/freeathome/internal/protocol"
)

// Pairing ids the simulator reacts to when an input datapoint is written
const (
	pairingSwitchOnOff     = "0001"
	pairingSwitchState     = "0100"
	pairingMoveUpDown      = "0020"
	pairingStopStepUpDown  = "0021"
	pairingSetPosition     = "0023"
	pairingMovementState   = "0120"
	pairingCurrentPosition = "0121"
)

// Cover movement values reported on the movement output
const (
	movementStopped = "0"
	movementClosing = "2"
	movementOpening = "3"
)

// Write errors, reported to clients as XML-RPC faults
var (
	ErrUnknownDatapoint = errors.New("simulator: unknown datapoint")
	ErrInvalidValue     = errors.New("simulator: invalid value")
)

type datapointInfo struct {
	direction project.Direction
	pairing   string
}

// Model holds the simulated device state: the configuration document plus
// every datapoint value written since startup.
type Model struct {
	mu         sync.Mutex
	doc        []byte
	project    *project.Project
	datapoints map[string]datapointInfo
	values     map[string]string
}

// NewModel parses a configuration document
func NewModel(doc []byte) (*Model, error) {
	p, err := project.Parse(doc)
	if err != nil {
		return nil, err
	}

	m := &Model{
		doc:        doc,
		project:    p,
		datapoints: make(map[string]datapointInfo),
		values:     make(map[string]string),
	}
	for _, d := range p.Devices {
		for _, ch := range d.Channels {
			for _, dp := range append(append([]project.Datapoint{}, ch.Inputs...), ch.Outputs...) {
				id := project.DatapointID(d.SerialNumber, ch.ID, dp.ID)
				m.datapoints[id] = datapointInfo{direction: dp.Direction, pairing: dp.PairingID}
				m.values[id] = dp.Value
			}
		}
	}
	return m, nil
}

// Project returns the parsed document as loaded
func (m *Model) Project() *project.Project {
	return m.project
}

// Value returns the current value of a fully-qualified datapoint
func (m *Model) Value(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[id]
	return v, ok
}

// Write stores value and returns the update batches a SysAP would push in
// response, in order. Input writes are mirrored onto the paired outputs of
// the same channel; cover moves produce a second batch for the end of the
// travel.
func (m *Model) Write(id, value string) ([][]protocol.DatapointUpdate, error) {
	serial, channel, dp, ok := project.SplitDatapointID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatapoint, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.datapoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatapoint, id)
	}

	if info.direction == project.Input && info.pairing == pairingSetPosition {
		if _, ok := parsePercent(value); !ok {
			return nil, fmt.Errorf("%w: position %q", ErrInvalidValue, value)
		}
	}

	first := []protocol.DatapointUpdate{m.set(serial, channel, dp, info.direction, value)}
	if info.direction == project.Output {
		return [][]protocol.DatapointUpdate{first}, nil
	}

	var later []protocol.DatapointUpdate
	switch info.pairing {
	case pairingSwitchOnOff:
		first = m.echo(first, serial, channel, pairingSwitchState, value)

	case pairingSetPosition:
		first = m.echo(first, serial, channel, pairingCurrentPosition, value)

	case pairingMoveUpDown:
		movement, position := movementOpening, "0"
		if value == "1" {
			movement, position = movementClosing, "100"
		}
		first = m.echo(first, serial, channel, pairingMovementState, movement)
		later = m.echo(later, serial, channel, pairingCurrentPosition, position)
		later = m.echo(later, serial, channel, pairingMovementState, movementStopped)

	case pairingStopStepUpDown:
		first = m.echo(first, serial, channel, pairingMovementState, movementStopped)
	}

	batches := [][]protocol.DatapointUpdate{first}
	if len(later) > 0 {
		batches = append(batches, later)
	}
	return batches, nil
}

// echo sets the output with the given pairing id on serial/channel, if the
// channel has one, and appends the resulting update.
func (m *Model) echo(dst []protocol.DatapointUpdate, serial, channel, pairing, value string) []protocol.DatapointUpdate {
	d, ok := m.project.Device(serial)
	if !ok {
		return dst
	}
	ch, ok := d.Channel(channel)
	if !ok {
		return dst
	}
	for _, out := range ch.Outputs {
		if out.PairingID == pairing {
			return append(dst, m.set(serial, channel, out.ID, project.Output, value))
		}
	}
	return dst
}

func (m *Model) set(serial, channel, dp string, dir project.Direction, value string) protocol.DatapointUpdate {
	m.values[project.DatapointID(serial, channel, dp)] = value
	return protocol.DatapointUpdate{
		Serial:    serial,
		Channel:   channel,
		Datapoint: dp,
		Direction: dir,
		Value:     value,
	}
}

// Document returns the configuration document with current values
// substituted into every <value> element.
func (m *Model) Document() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dec := xml.NewDecoder(bytes.NewReader(m.doc))
	var out bytes.Buffer
	enc := xml.NewEncoder(&out)

	var (
		serial, channel, dp string
		inValue, replaced   bool
	)
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to rewrite document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "device":
				serial = attrValue(t, "serialNumber")
			case "channel":
				channel = attrValue(t, "i")
			case "dataPoint":
				dp = attrValue(t, "i")
			case "value":
				inValue, replaced = dp != "", false
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "dataPoint":
				dp = ""
			case "value":
				if inValue && !replaced {
					if v, ok := m.values[project.DatapointID(serial, channel, dp)]; ok && v != "" {
						if err := enc.EncodeToken(xml.CharData(v)); err != nil {
							return nil, err
						}
					}
				}
				inValue = false
			}
		case xml.CharData:
			if inValue {
				if v, ok := m.values[project.DatapointID(serial, channel, dp)]; ok {
					if replaced {
						// the value was already written for an earlier text run
						continue
					}
					tok, replaced = xml.CharData(v), true
				}
			}
		}

		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return nil, fmt.Errorf("failed to rewrite document: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Channels counts the channels in the document
func (m *Model) Channels() int {
	n := 0
	for _, d := range m.project.Devices {
		n += len(d.Channels)
	}
	return n
}

func attrValue(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parsePercent(value string) (int, bool) {
	n, err := strconv.Atoi(value)
	return n, err == nil && n >= 0 && n <= 100
}
