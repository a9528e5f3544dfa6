// Package coordinator fans reads and writes out to every active mechanism
// in a registry. Synchronous mechanisms are called inline; deferred ones are
// scheduled on a clock, at most one pending call per mechanism and direction,
// so a newer call always replaces an older one that has not fired yet.
//
// Reads that include deferred mechanisms are delivered to a callback once
// every deferred read has resolved or the wait budget has run out.
package coordinator
