// Package addressing encodes and decodes the compact destination identifiers
// that route packets across RAD and NoC boundaries.
package addressing

import (
	"fmt"
	"math/bits"
)

// A DestID is the packed destination identifier carried by every packet. It
// holds three fields: the local node on the destination NoC, the remote node
// used when crossing RAD boundaries, and the RAD the destination lives on.
type DestID uint64

// A Scheme defines the width of each DestID field. Field widths are fixed by
// the cluster configuration and must be wide enough to address every node in
// the configured cluster.
type Scheme struct {
	LocalNodeBits  uint
	RemoteNodeBits uint
	RADIDBits      uint
}

// NewScheme derives the field widths from the cluster shape. numNodes is the
// number of NoC nodes per RAD. The remote-node field must also hold every
// node id, plus the zero value that denotes "same RAD".
func NewScheme(numRADs, numNodes int) Scheme {
	return Scheme{
		LocalNodeBits:  bitsFor(numNodes - 1),
		RemoteNodeBits: bitsFor(numNodes),
		RADIDBits:      bitsFor(numRADs - 1),
	}
}

func bitsFor(maxValue int) uint {
	if maxValue <= 0 {
		return 1
	}

	return uint(bits.Len64(uint64(maxValue)))
}

// TotalBits returns the number of bits a DestID occupies under the scheme.
func (s Scheme) TotalBits() uint {
	return s.LocalNodeBits + s.RemoteNodeBits + s.RADIDBits
}

// Encode packs the three destination fields into a DestID. remoteNode 0
// denotes a destination on the same RAD. Encoding fails if any field exceeds
// its configured width, which indicates an unrunnable design.
func (s Scheme) Encode(remoteNode, localNode, radID uint64) (DestID, error) {
	if localNode >= 1<<s.LocalNodeBits {
		return 0, fmt.Errorf(
			"address overflow: local node %d does not fit in %d bits",
			localNode, s.LocalNodeBits)
	}

	if remoteNode >= 1<<s.RemoteNodeBits {
		return 0, fmt.Errorf(
			"address overflow: remote node %d does not fit in %d bits",
			remoteNode, s.RemoteNodeBits)
	}

	if radID >= 1<<s.RADIDBits {
		return 0, fmt.Errorf(
			"address overflow: rad id %d does not fit in %d bits",
			radID, s.RADIDBits)
	}

	id := localNode
	id |= remoteNode << s.LocalNodeBits
	id |= radID << (s.LocalNodeBits + s.RemoteNodeBits)

	return DestID(id), nil
}

// MustEncode is like Encode but panics on overflow. It is meant for the
// design-build phase, where an overflow is a fatal configuration fault.
func (s Scheme) MustEncode(remoteNode, localNode, radID uint64) DestID {
	id, err := s.Encode(remoteNode, localNode, radID)
	if err != nil {
		panic(err)
	}

	return id
}

// Decode unpacks a DestID into its three fields.
func (s Scheme) Decode(id DestID) (remoteNode, localNode, radID uint64) {
	v := uint64(id)

	localNode = v & ((1 << s.LocalNodeBits) - 1)
	v >>= s.LocalNodeBits

	remoteNode = v & ((1 << s.RemoteNodeBits) - 1)
	v >>= s.RemoteNodeBits

	radID = v & ((1 << s.RADIDBits) - 1)

	return remoteNode, localNode, radID
}

// IsLocal reports whether the destination lives on the same RAD as the
// sender.
func (s Scheme) IsLocal(id DestID) bool {
	remoteNode, _, _ := s.Decode(id)
	return remoteNode == 0
}
