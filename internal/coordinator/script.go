package coordinator

import (
	"fmt"

	"github.com/roach88/hive/internal/sandbox"
)

// ScriptMethods exposes the registry to sandboxed scripts:
//
//	coordinator.providers()   list of {id, availability, workers}
//	coordinator.available()   number of available providers
//	coordinator.log(msg)      write msg to the coordinator log
func (c *Coordinator) ScriptMethods() map[string]sandbox.Method {
	return map[string]sandbox.Method{
		"providers": func([]any) (any, error) {
			list := c.Providers()
			out := make([]any, 0, len(list))
			for _, p := range list {
				workers := make([]any, 0, len(p.Workers))
				for _, w := range p.Workers {
					workers = append(workers, w)
				}
				out = append(out, map[string]any{
					"id":           p.ID,
					"availability": p.Availability,
					"workers":      workers,
				})
			}
			return out, nil
		},
		"available": func([]any) (any, error) {
			n := 0
			for _, p := range c.Providers() {
				if p.Availability == "available" {
					n++
				}
			}
			return n, nil
		},
		"log": func(args []any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("log: message required")
			}
			c.log.Info("script", "message", fmt.Sprint(args[0]))
			return nil, nil
		},
	}
}
