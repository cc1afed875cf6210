package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func TestParse_MovementDetector(t *testing.T) {
	p, err := Parse(loadFixture(t, "100A_movement_detector_actuator_1gang.xml"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(p.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(p.Devices))
	}

	d := p.Devices[0]
	if d.SerialNumber != "ABB700C12345" {
		t.Errorf("SerialNumber = %q, want ABB700C12345", d.SerialNumber)
	}
	if d.DeviceID != "100A" {
		t.Errorf("DeviceID = %q, want 100A", d.DeviceID)
	}
	if d.Firmware != "2.1366" {
		t.Errorf("Firmware = %q, want 2.1366", d.Firmware)
	}
	if d.DisplayName != "Bewegungsmelder" {
		t.Errorf("DisplayName = %q, want Bewegungsmelder", d.DisplayName)
	}
	if len(d.Channels) != 2 {
		t.Fatalf("len(Channels) = %d, want 2", len(d.Channels))
	}

	ch := d.Channels[0]
	if ch.ID != "ch0000" || ch.FunctionID != "0011" {
		t.Errorf("channel = %s/%s, want ch0000/0011", ch.ID, ch.FunctionID)
	}
	if ch.DisplayName != "Bewegungssensor" {
		t.Errorf("channel DisplayName = %q, want Bewegungssensor", ch.DisplayName)
	}
	if len(ch.Inputs) != 1 || len(ch.Outputs) != 3 {
		t.Fatalf("inputs/outputs = %d/%d, want 1/3", len(ch.Inputs), len(ch.Outputs))
	}

	dp, ok := ch.Output("odp0002")
	if !ok {
		t.Fatal("Output(odp0002) not found")
	}
	if dp.Value != "20" {
		t.Errorf("odp0002 value = %q, want 20", dp.Value)
	}
	if dp.PairingID != "0403" {
		t.Errorf("odp0002 pairingId = %q, want 0403", dp.PairingID)
	}
	if dp.Direction != Output {
		t.Errorf("odp0002 direction = %v, want outputs", dp.Direction)
	}

	in, ok := ch.Input("idp0000")
	if !ok || in.Direction != Input {
		t.Errorf("Input(idp0000) = %+v, %v", in, ok)
	}
}

func TestParse_Floorplan(t *testing.T) {
	p, err := Parse(loadFixture(t, "mixed_actuators.xml"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	names := p.RoomNames()
	tests := []struct {
		floor, room, want string
	}{
		{"00", "00", "Wohnzimmer"},
		{"00", "01", "Kueche"},
		{"01", "00", "Bad"},
		{"02", "00", ""},
	}

	for _, tt := range tests {
		if got := names[tt.floor][tt.room]; got != tt.want {
			t.Errorf("RoomNames()[%s][%s] = %q, want %q", tt.floor, tt.room, got, tt.want)
		}
	}
}

func TestParse_KeepsUnknownFunctions(t *testing.T) {
	p, err := Parse(loadFixture(t, "mixed_actuators.xml"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	d, ok := p.Device("ABB200000009")
	if !ok {
		t.Fatal("device ABB200000009 missing")
	}
	if len(d.Channels) != 2 {
		t.Fatalf("len(Channels) = %d, want 2", len(d.Channels))
	}
	if d.Channels[0].FunctionID != "ABCD" || d.Channels[1].FunctionID != "zz" {
		t.Errorf("function ids = %q, %q", d.Channels[0].FunctionID, d.Channels[1].FunctionID)
	}
}

func TestChannel_LocationFallsBackToDevice(t *testing.T) {
	p, err := Parse(loadFixture(t, "unknown_weather_station.xml"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	d := &p.Devices[0]
	floor, room := d.Channels[2].Location(d)
	if floor != "00" || room != "00" {
		t.Errorf("Location() = %s/%s, want 00/00", floor, room)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", "   "},
		{"malformed xml", `<project><devices><device serialNumber="A">`},
		{"truncated element after root", `<project><devices><device serialNumber="A"/></devices></project><devices><device`},
		{"second root element", `<project><devices><device serialNumber="A"/></devices></project><project/>`},
		{"text after root", `<project><devices><device serialNumber="A"/></devices></project>garbage`},
		{"wrong root", `<update><device serialNumber="A"/></update>`},
		{"missing serial", `<project><devices><device deviceId="100A"/></devices></project>`},
		{"missing channel id", `<project><devices><device serialNumber="A"><channels><channel/></channels></device></devices></project>`},
		{"duplicate channel id", `<project><devices><device serialNumber="A"><channels><channel i="ch0000"/><channel i="ch0000"/></channels></device></devices></project>`},
		{"missing datapoint id", `<project><devices><device serialNumber="A"><channels><channel i="ch0000"><outputs><dataPoint><value>1</value></dataPoint></outputs></channel></channels></device></devices></project>`},
		{"duplicate serial", `<project><devices><device serialNumber="A"/><device serialNumber="A"/></devices></project>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatalf("Parse() = %+v, want error", p)
			}
			if p != nil {
				t.Errorf("Parse() returned a project alongside the error")
			}

			var pe *ConfigParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %T is not a *ConfigParseError", err)
			}
			if !IsConfigParseError(err) {
				t.Errorf("IsConfigParseError(%v) = false", err)
			}
		})
	}
}

func TestParse_TrailingWhitespaceAndComments(t *testing.T) {
	doc := "<project><devices><device serialNumber=\"A\"/></devices></project>\n<!-- saved by SysAP -->\n"
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(p.Devices) != 1 {
		t.Errorf("Parse() found %d devices, want 1", len(p.Devices))
	}
}

func TestConfigParseError_Error(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := &ConfigParseError{Message: "malformed configuration XML", Err: cause}
	if got, want := err.Error(), "config parse error: malformed configuration XML: unexpected EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}

	err = &ConfigParseError{Message: "duplicate channel id", Serial: "A", Channel: "ch0000"}
	if got, want := err.Error(), "config parse error: duplicate channel id (device A, channel ch0000)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSplitDatapointID(t *testing.T) {
	serial, channel, dp, ok := SplitDatapointID(DatapointID("ABB700C12345", "ch0000", "odp0002"))
	if !ok || serial != "ABB700C12345" || channel != "ch0000" || dp != "odp0002" {
		t.Errorf("SplitDatapointID() = %s %s %s %v", serial, channel, dp, ok)
	}

	for _, bad := range []string{"", "a/b", "a//c", "a/b/c/d"} {
		if _, _, _, ok := SplitDatapointID(bad); ok {
			t.Errorf("SplitDatapointID(%q) ok = true, want false", bad)
		}
	}
}
