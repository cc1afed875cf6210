package discovery

import "testing"

func TestHub_String(t *testing.T) {
	tests := []struct {
		name string
		hub  *Hub
		want string
	}{
		{
			name: "with instance name",
			hub:  &Hub{Name: "SysAP Home", Hostname: "sysap.local.", IP: "192.168.1.10", Port: 80},
			want: "SysAP SysAP Home (sysap.local.) at 192.168.1.10:80",
		},
		{
			name: "hostname fallback",
			hub:  &Hub{Hostname: "sysap.local.", IP: "192.168.1.10", Port: 80},
			want: "SysAP sysap.local. (sysap.local.) at 192.168.1.10:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hub.String(); got != tt.want {
				t.Errorf("Hub.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHub_URLs(t *testing.T) {
	hub := &Hub{IP: "10.0.0.5", Port: 8080}

	if got := hub.BaseURL(); got != "http://10.0.0.5:8080" {
		t.Errorf("Hub.BaseURL() = %v", got)
	}
	if got := hub.WebsocketURL(); got != "ws://10.0.0.5:5280/xmpp-websocket" {
		t.Errorf("Hub.WebsocketURL() = %v", got)
	}
}

func TestHub_GetMetadata(t *testing.T) {
	hub := &Hub{Metadata: map[string]string{"path": "/"}}

	if got := hub.GetMetadata("path"); got != "/" {
		t.Errorf("GetMetadata(path) = %q", got)
	}
	if got := hub.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q", got)
	}
	if got := (&Hub{}).GetMetadata("path"); got != "" {
		t.Errorf("GetMetadata with nil map = %q", got)
	}
}
