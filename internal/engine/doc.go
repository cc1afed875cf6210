// Package engine owns the live device model of one SysAP session.
//
// An Engine holds the current devices.Set behind an atomic pointer. A
// rebuild (FindDevices) fetches and parses the configuration, builds a new
// set and swaps it in as a whole; readers never see a half-built set.
// Update fragments that arrive while a rebuild is running are queued and
// applied to the new set once it is installed.
//
//	eng := engine.New(engine.Options{Fetcher: client, Setter: client})
//	if err := eng.FindDevices(ctx, true); err != nil {
//		return err
//	}
//	client.OnUpdate(func(fragment []byte) {
//		_ = eng.UpdateDevices(ctx, fragment)
//	})
//	for _, d := range eng.GetDevices(devices.CategorySensor) {
//		fmt.Println(d.Name(), d.State())
//	}
package engine
