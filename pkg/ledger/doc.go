// Package ledger tracks units of marketing work (campaigns and editorial outputs)
// through a forward-only status machine.
//
// Invariants:
// - Entry IDs are generated once ({PREFIX}-{yymmdd}-{random4}) and never change.
// - Status only moves forward along its lane; entries are never deleted.
// - Every mutation goes through Store.Update (update by id, merge fields).
//
// Usage:
//
//	l := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
//	entry, _ := l.Open(ctx, ledger.OpenParams{Lane: ledger.LaneReview, Title: "Launch newsletter"})
//	status := ledger.StatusCompleted
//	_, _ = l.Update(ctx, entry.ID, ledger.Patch{Status: &status})
package ledger
