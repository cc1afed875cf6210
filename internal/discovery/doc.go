// Package discovery finds free@home System Access Points on the local
// network with multicast DNS.
//
// The SysAP advertises its web interface as an "_http._tcp" service. A
// service entry is accepted as a SysAP when its hostname looks like
// "sysap[-<serial>].local" or its instance name mentions SysAP or
// free@home.
//
//	hubs, err := discovery.Scan(ctx, 5*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, hub := range hubs {
//	    fmt.Println(hub, hub.WebsocketURL())
//	}
//
// Discovery requires multicast on the local segment and UDP port 5353
// open in the host firewall.
package discovery
