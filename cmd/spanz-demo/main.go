// Command spanz-demo runs a small service instrumented with spanz: an
// inbound HTTP handler that sets baggage, opens and continues spans,
// offloads named work to a worker pool, calls a peer and waits on a
// deferred call to a second service.
package main

func main() {
	Execute()
}
