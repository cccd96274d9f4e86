// Package cache stores synthesized chunk audio so repeated sentences are not
// synthesized twice. A memory LRU sits in front of a zstd-compressed disk
// store.
package cache
