package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// XML-RPC method names understood by the SysAP
const (
	MethodGetAll       = "RemoteInterface.getAll"
	MethodSetDatapoint = "RemoteInterface.setDatapoint"
)

// GetAllParams are the arguments the SysAP expects for a full configuration
// fetch: language, interface version and two reserved flags.
var GetAllParams = []any{"de", 4, 0, 0}

// GetAllParamsFor returns GetAllParams with another language
func GetAllParamsFor(language string) []any {
	if language == "" {
		return GetAllParams
	}
	return []any{language, 4, 0, 0}
}

// BuildMethodCall encodes an XML-RPC <methodCall>. Supported parameter types
// are string, int, bool and float64.
func BuildMethodCall(method string, params ...any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&buf, []byte(method)); err != nil {
		return nil, err
	}
	buf.WriteString("</methodName><params>")
	for i, p := range params {
		buf.WriteString("<param><value>")
		switch v := p.(type) {
		case string:
			buf.WriteString("<string>")
			if err := xml.EscapeText(&buf, []byte(v)); err != nil {
				return nil, err
			}
			buf.WriteString("</string>")
		case int:
			fmt.Fprintf(&buf, "<i4>%d</i4>", v)
		case bool:
			b := 0
			if v {
				b = 1
			}
			fmt.Fprintf(&buf, "<boolean>%d</boolean>", b)
		case float64:
			fmt.Fprintf(&buf, "<double>%s</double>", strconv.FormatFloat(v, 'f', -1, 64))
		default:
			return nil, fmt.Errorf("unsupported XML-RPC parameter %d of type %T", i, p)
		}
		buf.WriteString("</value></param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

type xmlRPCValue struct {
	String  *string       `xml:"string"`
	I4      *string       `xml:"i4"`
	Int     *string       `xml:"int"`
	Boolean *string       `xml:"boolean"`
	Double  *string       `xml:"double"`
	Struct  *xmlRPCStruct `xml:"struct"`
	Inner   string        `xml:",chardata"`
}

type xmlRPCStruct struct {
	Members []xmlRPCMember `xml:"member"`
}

type xmlRPCMember struct {
	Name  string      `xml:"name"`
	Value xmlRPCValue `xml:"value"`
}

type xmlMethodResponse struct {
	XMLName xml.Name      `xml:"methodResponse"`
	Params  []xmlRPCValue `xml:"params>param>value"`
	Fault   *xmlRPCValue  `xml:"fault>value"`
}

// scalar returns the textual content of a scalar XML-RPC value. An untyped
// <value>text</value> is a string in XML-RPC.
func (v xmlRPCValue) scalar() string {
	switch {
	case v.String != nil:
		return *v.String
	case v.I4 != nil:
		return strings.TrimSpace(*v.I4)
	case v.Int != nil:
		return strings.TrimSpace(*v.Int)
	case v.Boolean != nil:
		return strings.TrimSpace(*v.Boolean)
	case v.Double != nil:
		return strings.TrimSpace(*v.Double)
	default:
		return v.Inner
	}
}

// ParseMethodResponse decodes an XML-RPC <methodResponse> and returns the
// first result as a string. getAll returns the configuration document as an
// escaped string, so the caller gets the raw XML back. A <fault> is returned
// as *Fault.
func ParseMethodResponse(data []byte) (string, error) {
	var resp xmlMethodResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to decode methodResponse: %w", err)
	}

	if resp.Fault != nil {
		f := &Fault{}
		if resp.Fault.Struct != nil {
			for _, m := range resp.Fault.Struct.Members {
				switch m.Name {
				case "faultCode":
					f.Code, _ = strconv.Atoi(m.Value.scalar())
				case "faultString":
					f.Message = m.Value.scalar()
				}
			}
		}
		return "", f
	}

	if len(resp.Params) == 0 {
		return "", nil
	}
	return resp.Params[0].scalar(), nil
}

type xmlMethodCall struct {
	XMLName xml.Name      `xml:"methodCall"`
	Method  string        `xml:"methodName"`
	Params  []xmlRPCValue `xml:"params>param>value"`
}

// ParseMethodCall decodes an XML-RPC <methodCall> into its method name and
// scalar parameters.
func ParseMethodCall(data []byte) (string, []string, error) {
	var call xmlMethodCall
	if err := xml.Unmarshal(data, &call); err != nil {
		return "", nil, fmt.Errorf("failed to decode methodCall: %w", err)
	}
	method := strings.TrimSpace(call.Method)
	if method == "" {
		return "", nil, fmt.Errorf("methodCall without methodName")
	}
	params := make([]string, 0, len(call.Params))
	for _, p := range call.Params {
		params = append(params, p.scalar())
	}
	return method, params, nil
}

// BuildMethodResponse encodes a single string result
func BuildMethodResponse(result string) []byte {
	return []byte("<methodResponse><params><param><value><string>" + escape(result) +
		"</string></value></param></params></methodResponse>")
}

// BuildFault encodes an XML-RPC fault
func BuildFault(code int, message string) []byte {
	return []byte(fmt.Sprintf("<methodResponse><fault><value><struct>"+
		"<member><name>faultCode</name><value><int>%d</int></value></member>"+
		"<member><name>faultString</name><value><string>%s</string></value></member>"+
		"</struct></value></fault></methodResponse>", code, escape(message)))
}
