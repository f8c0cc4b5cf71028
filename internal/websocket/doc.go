// Package websocket relays sync messages between the authoring tool and the
// previews connected over WebSocket.
//
// Manager keeps one registration per client address. Every client subscribes
// to a shared bounded broadcast channel and owns an unbounded unicast queue.
// A Session runs two pumps per connection:
//   - read pump: forwards text frames to the host's InboundFunc
//   - write pump: forwards broadcast and unicast messages, in order per source
//
// Whichever pump finishes first ends the session and releases the
// registration exactly once. A client that falls behind the broadcast buffer
// skips the oldest messages instead of slowing anyone else down.
package websocket
