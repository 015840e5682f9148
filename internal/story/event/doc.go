// Package event defines the closed set of narrative operations a compiled
// story script is made of.
//
// Event is sealed: only the types declared here implement it. Consumers switch
// over the concrete types and treat an unmatched type as a programming error,
// so adding a kind forces every switch (compiler, engine, renderer, save codec)
// to be revisited.
package event
