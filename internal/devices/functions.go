package devices

import (
	"strconv"
	"strings"
)

// Kind is the closed set of device object variants
type Kind int

const (
	KindUnmodeled Kind = iota
	KindSensor
	KindBinarySensor
	KindSwitch
	KindCover
	KindScene
)

// Category is the query category a device object is listed under
type Category string

const (
	CategorySensor       Category = "sensor"
	CategoryBinarySensor Category = "binary_sensor"
	CategorySwitch       Category = "switch"
	CategoryCover        Category = "cover"
	CategoryScene        Category = "scene"
)

// Categories lists every category in display order
var Categories = []Category{
	CategorySensor,
	CategoryBinarySensor,
	CategorySwitch,
	CategoryCover,
	CategoryScene,
}

// Category returns the query category for the kind
func (k Kind) Category() Category {
	switch k {
	case KindSensor:
		return CategorySensor
	case KindBinarySensor:
		return CategoryBinarySensor
	case KindSwitch:
		return CategorySwitch
	case KindCover:
		return CategoryCover
	case KindScene:
		return CategoryScene
	default:
		return ""
	}
}

// String returns a readable name for the kind
func (k Kind) String() string {
	if k == KindUnmodeled {
		return "unmodeled"
	}
	return string(k.Category())
}

// Function ids (hex) understood by the factory
const (
	FuncSwitchActuator uint16 = 0x0007
	FuncShutter        uint16 = 0x0009
	FuncWindAlarm      uint16 = 0x000C
	FuncFrostAlarm     uint16 = 0x000D
	FuncRainAlarm      uint16 = 0x000E
	FuncWindowDoor     uint16 = 0x000F
	FuncMovementSensor uint16 = 0x0011
	FuncBrightness     uint16 = 0x0041
	FuncRain           uint16 = 0x0042
	FuncTemperature    uint16 = 0x0043
	FuncWind           uint16 = 0x0044
	FuncBlind          uint16 = 0x0061
	FuncAtticWindow    uint16 = 0x0062
	FuncAwning         uint16 = 0x0063
	FuncSceneFirst     uint16 = 0x4800
	FuncSceneLast      uint16 = 0x4804
)

// Output and input datapoints referenced by templates and commands
const (
	dpOut0 = "odp0000"
	dpOut1 = "odp0001"
	dpOut2 = "odp0002"

	dpCoverMove     = "idp0000"
	dpCoverStop     = "idp0001"
	dpCoverPosition = "idp0002"
	dpSwitch        = "idp0000"
)

// template describes one device object produced for a channel
type template struct {
	kind    Kind
	subtype string
	watch   string // watched output datapoint
	extra   string // second watched output (cover movement)
	suffix  string // lookup key suffix, appended as "/<suffix>"
	named   bool   // append "_<subtype>" to the display name
}

var functionTemplates = map[uint16][]template{
	FuncMovementSensor: {
		{kind: KindSensor, subtype: "lux", watch: dpOut2, named: true},
		{kind: KindBinarySensor, subtype: "motion", watch: dpOut0, suffix: "motion", named: true},
	},
	FuncBrightness:  {{kind: KindSensor, subtype: "lux", watch: dpOut1, named: true}},
	FuncRain:        {{kind: KindSensor, subtype: "rain", watch: dpOut0, named: true}},
	FuncTemperature: {{kind: KindSensor, subtype: "temperature", watch: dpOut1, named: true}},
	FuncWind:        {{kind: KindSensor, subtype: "windstrength", watch: dpOut1, named: true}},

	FuncWindowDoor: {{kind: KindBinarySensor, subtype: "window_door", watch: dpOut0, named: true}},
	FuncWindAlarm:  {{kind: KindBinarySensor, subtype: "wind_alarm", watch: dpOut0, named: true}},
	FuncFrostAlarm: {{kind: KindBinarySensor, subtype: "frost_alarm", watch: dpOut0, named: true}},
	FuncRainAlarm:  {{kind: KindBinarySensor, subtype: "rain_alarm", watch: dpOut0, named: true}},

	FuncSwitchActuator: {{kind: KindSwitch, subtype: "switch", watch: dpOut0}},

	FuncShutter:     {{kind: KindCover, subtype: "shutter", watch: dpOut1, extra: dpOut0}},
	FuncBlind:       {{kind: KindCover, subtype: "blind", watch: dpOut1, extra: dpOut0}},
	FuncAtticWindow: {{kind: KindCover, subtype: "attic_window", watch: dpOut1, extra: dpOut0}},
	FuncAwning:      {{kind: KindCover, subtype: "awning", watch: dpOut1, extra: dpOut0}},
}

func init() {
	for fn := FuncSceneFirst; fn <= FuncSceneLast; fn++ {
		functionTemplates[fn] = []template{{kind: KindScene, subtype: "scene", watch: dpOut0}}
	}
}

// ParseFunctionID parses a raw hex function id such as "0011"
func ParseFunctionID(raw string) (uint16, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// KindOf returns the primary kind for a raw function id, KindUnmodeled when
// the id is unknown or unparseable.
func KindOf(rawFunctionID string) Kind {
	fn, ok := ParseFunctionID(rawFunctionID)
	if !ok {
		return KindUnmodeled
	}
	t, ok := functionTemplates[fn]
	if !ok || len(t) == 0 {
		return KindUnmodeled
	}
	return t[0].kind
}

func templatesFor(rawFunctionID string) []template {
	fn, ok := ParseFunctionID(rawFunctionID)
	if !ok {
		return nil
	}
	return functionTemplates[fn]
}

// deviceModels maps hardware device ids to model names
var deviceModels = map[string]string{
	"100A": "Bewegungsmelder/Schaltaktor 1-fach",
	"101D": "Wetterstation",
	"1002": "Schaltaktor 1-fach",
	"1004": "Jalousieaktor 1-fach",
	"B001": "Schaltaktor 4-fach, 16A, REG",
	"B002": "Jalousieaktor 4-fach, REG",
	"B005": "Fensterkontakt",
	"4800": "Szene",
}

// ModelName returns the model for a hardware device id
func ModelName(deviceID string) string {
	if m, ok := deviceModels[strings.ToUpper(deviceID)]; ok {
		return m
	}
	return "free@home " + deviceID
}
