/*
Package agent wires the node agent together and supervises it.

One websocket connection to the control plane is shared by four units that
run concurrently:

	inbound     reads frames, answers pings, feeds commands to the dispatcher
	            one at a time and queues each response
	dispatcher  executes commands against the orchestrator in order
	outbound    writes queued frames (pongs, responses, snapshots)
	reporter    lists containers on a timer and queues snapshots

The metrics endpoint and the reverse proxy join as further units when their
addresses are configured.

Units share one cancellable context. The first unit to fail cancels it and
the others return; Run reports that first error. A unit that finishes
normally, such as the inbound pump after the control plane sends a close
frame, leaves the rest running. The connection and the runtime client are
closed once every unit has returned.
*/
package agent
