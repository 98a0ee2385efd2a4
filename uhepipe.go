// Package uhepipe holds the plotting and flag helpers shared by the record
// pipeline tools: merge, fillweights, histogram and dump.
package uhepipe
