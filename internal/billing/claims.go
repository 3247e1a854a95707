package billing

import (
	"fmt"
	"sort"

	"github.com/cmbworks/cmbworks/internal/locks"
	"github.com/cmbworks/cmbworks/internal/measurement"
)

// BuildClaims rebuilds the set of measurement items already claimed by any
// bill or abstract. The result is never patched; callers rebuild it after the
// tree or the bill list changes.
func BuildClaims(tree *measurement.Tree, bills []BillData) *locks.State {
	return buildClaims(tree, bills, -1)
}

// ClaimsExcept is BuildClaims without the claims of bill skip.
func ClaimsExcept(tree *measurement.Tree, bills []BillData, skip int) *locks.State {
	return buildClaims(tree, bills, skip)
}

func buildClaims(tree *measurement.Tree, bills []BillData, skip int) *locks.State {
	state := locks.New()
	for i, b := range bills {
		if i == skip {
			continue
		}
		state.Union(BillClaims(b))
	}
	for _, abs := range tree.Abstracts() {
		for _, p := range abs.SourcePaths() {
			state.Set(p.Ints(), true)
		}
	}
	return state
}

// BillClaims returns the paths claimed by one bill.
func BillClaims(b BillData) *locks.State {
	state := locks.New()
	for _, p := range b.MItems {
		state.Set(p.Ints(), true)
	}
	return state
}

// CheckClaim fails with ErrPathLocked on the first path already held in
// claims or repeated within paths.
func CheckClaim(claims *locks.State, paths []measurement.Path) error {
	local := locks.New()
	for _, p := range paths {
		if claims.Locked(p.Ints()) || local.Locked(p.Ints()) {
			return fmt.Errorf("%w: %s", ErrPathLocked, p)
		}
		local.Set(p.Ints(), true)
	}
	return nil
}

// Available returns the claims of global that are not part of selected, i.e.
// the items locked by someone other than the current selection.
func Available(global, selected *locks.State) *locks.State {
	return global.Clone().Difference(selected)
}

// CheckExclusive fails with ErrPathLocked when a measurement item is claimed
// twice, whether by two abstracts, an abstract and a bill, two bills or the
// same bill.
func CheckExclusive(tree *measurement.Tree, bills []BillData) error {
	claims := locks.New()
	abstracts := tree.Abstracts()
	at := make([]measurement.Path, 0, len(abstracts))
	for p := range abstracts {
		at = append(at, p)
	}
	sort.Slice(at, func(i, j int) bool { return pathLess(at[i], at[j]) })
	for _, p := range at {
		sources := abstracts[p].SourcePaths()
		if err := CheckClaim(claims, sources); err != nil {
			return fmt.Errorf("abstract %s: %w", p, err)
		}
		for _, src := range sources {
			claims.Set(src.Ints(), true)
		}
	}
	for i, b := range bills {
		if err := CheckClaim(claims, b.MItems); err != nil {
			return fmt.Errorf("bill %d: %w", i, err)
		}
		claims.Union(BillClaims(b))
	}
	return nil
}

func pathLess(a, b measurement.Path) bool {
	if a.CMB != b.CMB {
		return a.CMB < b.CMB
	}
	if a.Measurement != b.Measurement {
		return a.Measurement < b.Measurement
	}
	return a.Item < b.Item
}
