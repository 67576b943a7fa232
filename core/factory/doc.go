// Package factory instantiates pluggable modules, such as metrics sinks and
// audit stores, from configuration. A module is selected by a type string and
// configured by a map of raw settings that the factory decodes into its own
// typed struct.
//
//	reg := factory.NewRegistry[audit.Store]()
//	reg.Register("jsonl", func(conf map[string]any) (audit.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return audit.NewJSONLStore(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "decisions.jsonl"}})
package factory
