// Package config provides loosely-typed configuration for the executor and
// its collaborators: the model candidate list, retry limits, loop bounds,
// and storage paths.
//
// Configuration is a map[string]any loaded from YAML or JSON, with typed
// accessors that fall back to defaults on missing or mistyped keys. The
// chatgraph package translates a Config into functional options.
//
// Example:
//
//	cfg, err := config.FromFile("chatgraph.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	maxRounds := cfg.Int("max_tool_rounds", 8)
//	for _, m := range cfg.SubSlice("models") {
//	    fmt.Println(m.String("provider", ""), m.String("model", ""))
//	}
package config
