// Package cluster provides the message passing layer between the ranks of a
// distributed solve: point-to-point row transfer with completion handles,
// all-reduce and barrier collectives, and the HTTP/JSON wire types shared by
// the coordinator and the rank processes.
//
// # Overview
//
// A solve is split into ranks, each owning a band of grid rows. Ranks share
// no memory. The only data crossing a rank boundary are halo rows, which are
// always copied, and the per-sweep residual, which is reduced collectively.
//
// # Architecture
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │              │
//	              │ - Registry   │
//	              │ - Collective │
//	              │ - Health Mon │
//	              └──────┬───────┘
//	                     │  /register /world /collective /result
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│  Rank 0   │ │  Rank 1   │ │  Rank 2   │
//	│ top band  │ │ mid band  │ │ low band  │
//	└─────┬─────┘ └──┬─────┬──┘ └─────┬─────┘
//	      └─ /halo ──┘     └─ /halo ──┘
//
// # Implementations
//
// LocalWorld: every rank is a goroutine of the same process. Isend copies the
// row into the destination's Mailbox, collectives run on a shared Collective.
// Used by the single-process binary and by tests.
//
// HTTPComm: every rank is its own process. Isend posts a HaloMessage to the
// peer's /halo endpoint, Irecv waits on the local Mailbox, and collectives are
// requests to the coordinator that return once all ranks have joined the
// round.
//
// # Non-blocking transfers
//
// Isend and Irecv start the transfer in a goroutine and return a Request. The
// halo exchange issues its sends and receives in both directions before
// waiting on any of them. Issuing both directions first is what keeps two
// neighbors from each waiting on the other's receive.
//
// # Failure Handling
//
// There are no retries and no timeouts on collectives. Any transport error is
// returned to the solver, which aborts the run; a rank that never answers
// stalls every other rank at the next collective.
package cluster
