// Package config keeps the user's config.yaml: known SysAPs, the MQTT
// bridge, the optional InfluxDB recorder and CLI preferences.
//
// The file lives in GetConfigDir, which is $XDG_CONFIG_HOME/freeathome or
// ~/.config/freeathome on Unix and %LOCALAPPDATA%\freeathome on Windows.
//
// Secrets are never written to the file. The SysAP password comes from
// --password or FAH_PASSWORD, the broker password from FAH_MQTT_PASSWORD
// and the InfluxDB token from FAH_INFLUX_TOKEN.
//
//	reg, err := config.LoadRegistry()
//	if err != nil {
//	    return err
//	}
//	hub := reg.EnsureHub("home")
//	hub.Host = "192.168.1.10"
//	hub.Username = "installer"
//	return reg.Save()
//
// LoadRegistry reads the file once per process. Saves are serialised and
// replace the file by renaming a temp file over it.
package config
