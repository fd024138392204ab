// Package testutil provides test helpers shared across packages:
//   - Miniredis helpers standing in for the variable store (miniredis.go)
//   - A fake Socrata resource endpoint serving scripted pages (socrata.go)
package testutil
