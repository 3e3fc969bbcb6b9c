// Package discovery finds devices and reports them to subscribers.
//
// A Discoverer emits device.Identifiers to its subscribers, asynchronously
// and without deduplication. Two implementations are provided:
//
//   - MdnsDiscoverer browses "_shelly._tcp" continuously. Gen2 and later
//     devices advertise this service. The device ID comes from the "id" TXT
//     record or the instance name; the model is not advertised and is left
//     empty.
//   - StaticDiscoverer reports a configured list of devices on Discover.
//
// Scan performs a one-shot browse and returns what it found:
//
//	entries, err := discovery.Scan(ctx, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, e := range entries {
//	    fmt.Println(e)
//	}
package discovery
