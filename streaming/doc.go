// Package streaming bridges push-style event production into ordered,
// cancellable consumption.
//
// A consumer opens a session and hands the session token to a producer that
// may run on any goroutine (typically a callback from a runtime the consumer
// does not control). The producer calls Push, End or Fail with that token;
// the consumer drains the session with Stream.Next or ranges over
// Stream.All:
//
//	s := bridge.Open(ctx)
//	go runtime.Run(s.Token(), bridge) // pushes events, then End or Fail
//	for ev, err := range s.All(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(ev)
//	}
//
// Events are delivered in the order their Push calls completed. Once the
// consumer stops early the session is cancelled and later producer calls
// for its token are silently dropped.
//
// Subpackage redisrelay carries the same Sink calls across processes over a
// Redis stream.
package streaming
