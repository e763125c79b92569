// Package capability describes named operations ("capabilities") that a host
// exposes to callers who only know a capability's name and send untyped JSON
// arguments.
//
// A capability is a Descriptor (name, description, ordered parameters and
// permission metadata) bound to an Executor. Descriptors are either declared
// explicitly:
//
//	add := capability.Define("add",
//	    []capability.Parameter{
//	        capability.Param("a", "float64", capability.Describe("left operand")),
//	        capability.Param("b", "float64", capability.Describe("right operand")),
//	    },
//	    capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
//	        a, _ := args.Float("a")
//	        b, _ := args.Float("b")
//	        return a + b, nil
//	    }),
//	    capability.WithDescription("Adds two numbers"),
//	)
//
// or reflected from an args struct with New:
//
//	type GreetArgs struct {
//	    Name     string  `json:"name" jsonschema:"description=Who to greet"`
//	    Language *string `json:"language,omitempty"`
//	}
//	greet := capability.New("greet", func(ctx context.Context, a GreetArgs) (any, error) { ... })
//
// Capabilities are registered once during start-up on a Registry, which is
// then handed to the dispatcher. The Registry publishes each descriptor as a
// function-calling schema (see BuildSchema) and rejects duplicate names.
package capability
