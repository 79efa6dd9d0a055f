// Package coordinator holds the state behind the coordinator process of a
// distributed solve.
//
// # Overview
//
// A distributed solve runs one rank per node process. Nodes know nothing
// about each other when they start; the coordinator introduces them, runs
// their collectives and collects the result:
//
//	        ┌─────────────── coordinator ───────────────┐
//	        │ RankRegistry   CollectiveService          │
//	        │ ResultStore    HealthMonitor              │
//	        └──▲──────────▲──────────────▲───────────▲──┘
//	 /register │   /world │  /collective │   /result │
//	        ┌──┴───┐   ┌──┴───┐      ┌───┴──┐    ┌───┴──┐
//	        │rank 0│◄─►│rank 1│◄────►│rank 2│ …  │rank 0│
//	        └──────┘   └──────┘ /halo└──────┘    └──────┘
//
// # Lifecycle
//
//  1. Every node POSTs /register. RankRegistry hands out ranks in
//     registration order until the world of RANK_COUNT ranks is full.
//  2. Nodes poll /world until it is Ready, then derive their partition and
//     peer addresses from it. The world carries the solver configuration, so
//     every rank solves the same problem.
//  3. During the solve, halo rows travel directly between neighboring ranks.
//     Only the residual reduction and the barrier of each sweep go through
//     CollectiveService.
//  4. Rank 0 gathers the grid and POSTs a ResultReport, which ResultStore
//     keeps for GET /result.
//
// # Failure Handling
//
// HealthMonitor polls every rank and logs those that stop answering. Nothing
// is reassigned: a collective round cannot complete without every rank, so a
// lost rank stalls the solve until the operator stops it.
package coordinator
