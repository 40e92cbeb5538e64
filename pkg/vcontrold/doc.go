// Package vcontrold provides a client for the vcontrold heating-control
// daemon. It sends named commands over the daemon's line-oriented TCP
// protocol, converts the replies into typed values and renders them.
//
// # Basic Usage
//
//	cat, err := vcontrold.NewCatalog([]vcontrold.CommandDefinition{
//	    {Name: "getTempA", Unit: vcontrold.UnitCelsius, Groups: []string{"temperature"}},
//	    {Name: "getBrennerStatus", Unit: vcontrold.UnitBool, Groups: []string{"burner"}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := vcontrold.NewSession("192.168.1.20")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	res, err := vcontrold.NewPoller(session, cat).Query(ctx, vcontrold.Group("temperature"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, _ := vcontrold.Format(res, vcontrold.FormatText, vcontrold.DefaultFormatOptions())
//
// # Sessions
//
// A Session owns one connection and serializes commands on it. It dials
// lazily and never reopens after Close or a dropped connection. Use one
// Session per daemon; a Session is safe for use from several goroutines
// but commands will queue.
//
//	session, err := vcontrold.NewSession("192.168.1.20",
//	    vcontrold.WithPort(3002),
//	    vcontrold.WithRequestTimeout(5*time.Second),
//	    vcontrold.WithLogger(slog.Default()),
//	)
//
// For a one-off query, Fetch dials, queries and closes in one call:
//
//	res, err := vcontrold.Fetch(ctx, "192.168.1.20", cat,
//	    vcontrold.Select([]string{"burner"}, []string{"getTempA"}), nil)
//
// # Discovery
//
// Discover probes the local /24 networks for hosts that greet with the
// daemon prompt:
//
//	found, err := vcontrold.Discover(ctx, vcontrold.DefaultPort)
//
// # Errors
//
// Failures of a single item (timeouts, daemon errors, empty replies,
// conversion errors) are stored on the Item in the Result. Unknown item or
// group names fail the query with *LookupError, and a lost connection
// aborts it with *ConnectionError.
package vcontrold
