// Package quorum provides the majority vote used to pick a value out of the
// copies returned by independent storage mechanisms.
package quorum
