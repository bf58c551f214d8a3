// Package app composes the edition inventory engine into a running
// application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── domain/             # Records: collection, edition, mysterybox, trade, reservation
//	├── lifecycle/          # Edition status machine and collection cascade planning
//	├── allocator/          # Weighted random selection over box pools
//	├── ledger/             # Per-collection inventory actor: reserve, commit, release, mint
//	├── recorder/           # Ownership transfers with append-only history
//	├── services/allocation # Purchase, publish, box, airdrop and synthesize flows
//	├── storage/            # Store interfaces and the memory, postgres and redis backends
//	├── httpapi/            # REST handlers and routing
//	├── metrics/            # Prometheus collectors
//	└── system/             # Service lifecycle manager
//
// # Dependency Direction
//
//	cmd/marketd
//	      │
//	      ▼
//	internal/app (composition)
//	      │
//	      ├──► services/allocation ──► ledger, recorder, allocator, lifecycle
//	      │
//	      └──► storage (memory | postgres + redisstore)
//
// Storage implementations enforce counter bounds with conditional writes.
// The ledger serializes decisions per collection; the store is the final
// arbiter when several processes share one database.
package app
