// Package buffer implements bounded FIFO buffers over pooled segments.
//
// A buffer is a chain of fixed-size segments borrowed from an
// [allocator.Allocator]. Appends go to the head segment and spill into new
// segments as needed; reads drain the tail segment, which is retired as soon
// as it is empty. Drained segments are kept by the buffer up to its minimum
// segment count and handed back to the allocator beyond that.
//
// # Chunky buffers
//
// Chunky preserves entry boundaries. Every entry is stored as a 1-5 unit
// length prefix followed by its payload, and may span any number of
// segments:
//
//	buf, err := buffer.NewChunky(alloc, buffer.Options{MinSegments: 1, MaxSegments: 8})
//	if err != nil {
//	    return err
//	}
//	defer buf.Close()
//
//	if err := buf.Append([]byte("hello")); err != nil {
//	    if errors.Is(err, errors.ErrBufferFull) {
//	        // apply backpressure
//	    }
//	}
//	entry, err := buf.GetNext(ctx)
//
// # Streamy buffers
//
// Streamy stores units with no framing; reads return whatever is available
// up to the destination length.
//
// # Append atomicity
//
// An append either stores the whole entry or leaves the buffer untouched.
// Segments needed for the entry are reserved from the allocator in a
// single all-or-nothing request before anything is written.
//
// # Thread Safety
//
// Each buffer serializes its operations with its own mutex. Blocking reads
// release the mutex while waiting and are woken by the next append or by
// Close. Manager.GetOrCreate uses double-checked locking.
package buffer
