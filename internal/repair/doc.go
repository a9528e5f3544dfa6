// Package repair restores a recovered value into the mechanisms that lost
// it. Reconcile compares each mechanism's observation with the winning value
// of a vote; Repairer rewrites the winner into the stale ones.
package repair
