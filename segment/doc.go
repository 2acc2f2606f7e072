// Package segment splits raw document text into ordered, overlapping
// retrieval units. Splitting is a pure function of its inputs; callers
// decide chunk sizing and overlap.
package segment
