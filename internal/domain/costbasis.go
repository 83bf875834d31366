package domain

// CostBasisSnapshot is a user's current-cycle cost basis, recomputed on
// demand by replaying that cycle's trade-history rows. Derived, never
// stored.
type CostBasisSnapshot struct {
	UpCost     int64 // currency minor units
	DownCost   int64
	UpShares   int64 // share minor units
	DownShares int64
}
