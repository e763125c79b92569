// Package agent drives an external agent runtime through opaque handles and
// exposes the host's capabilities back to it.
//
// A Host is created once at start-up around a Runtime implementation. It
// owns the capability registry, the dispatcher the runtime calls back
// through (Exports) and the streaming bridge replies are delivered on:
//
//	host := agent.NewHost(rt)
//	a, err := host.NewBuilder("calc").
//		WithInstructions("You are a calculator.").
//		WithOpenRouter("anthropic/claude-3-sonnet", apiKey).
//		WithPlugin(mathPlugin).
//		Build(ctx)
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	conv, err := host.NewConversation(ctx, a)
//	if err != nil {
//		return err
//	}
//	defer conv.Close()
//
//	s, err := conv.SendStreaming(ctx, "What is 2 + 3?")
//	if err != nil {
//		return err
//	}
//	for ev, err := range agent.Events(ctx, s) {
//		...
//	}
//
// Every Agent, Conversation and Project owns exactly one runtime handle and
// destroys it exactly once, on the first Close.
package agent
