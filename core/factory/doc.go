// Package factory provides a small generic registry used to instantiate
// modules such as metrics sinks from configuration. A module is named by a
// type string and carries a map of raw settings which its factory decodes
// into a typed struct with Decode.
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	reg.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c struct{ URL string `json:"url"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInflux(c.URL), nil
//	})
package factory
