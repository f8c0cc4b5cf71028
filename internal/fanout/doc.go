// Package fanout provides the in-process message primitives behind the sync
// channel: a bounded multi-subscriber Broadcaster that drops the oldest
// buffered value for a subscriber that falls behind, and an unbounded FIFO
// Queue for targeted delivery.
//
// Both expose the same consumer shape: Ready returns a channel that fires
// when values may be available (and stays readable once the source is
// closed), and Pop removes one value. A consumer can therefore select over
// several sources and drain each in order:
//
//	for {
//	    select {
//	    case <-sub.Ready():
//	        for {
//	            v, ok, closed := sub.Pop()
//	            ...
//	        }
//	    case <-queue.Ready():
//	        ...
//	    }
//	}
package fanout
