package arbitration

import "fmt"

// A Request asks an Allocator to match a requester with a resource. One
// requester may submit requests for several resources in the same round.
type Request struct {
	Requester int
	Resource  int
}

// A Grant matches one requester with one resource. Within one allocation
// round, a requester appears in at most one grant and so does a resource.
type Grant struct {
	Requester int
	Resource  int
}

// An Allocator matches requesters to resources. Routers use allocators for
// virtual-channel allocation and for switch allocation.
type Allocator interface {
	// Allocate resolves one allocation round. The returned grants form a
	// matching: no requester and no resource is granted twice.
	Allocate(requests []Request) []Grant
}

// NewAllocator creates an allocator by policy name. Recognized policies are
// "islip", "fixed_rr", and "priority_rr".
func NewAllocator(
	policy string,
	numRequesters, numResources, numIterations int,
) (Allocator, error) {
	switch policy {
	case "islip":
		return NewISLIPAllocator(
			numRequesters, numResources, numIterations), nil
	case "fixed_rr":
		return NewFixedPriorityAllocator(numRequesters, numResources), nil
	case "priority_rr":
		return NewRotatingPriorityAllocator(numRequesters, numResources), nil
	default:
		return nil, fmt.Errorf("unknown allocator policy %q", policy)
	}
}

// NewISLIPAllocator creates an iterative round-robin matching allocator. Each
// iteration, every free resource grants to one proposing requester and every
// requester accepts one grant; unmatched pairs retry in the next iteration up
// to the iteration cap. Grant and accept pointers advance only on a
// successful match, which guarantees long-run fairness.
func NewISLIPAllocator(
	numRequesters, numResources, numIterations int,
) Allocator {
	if numIterations < 1 {
		numIterations = 1
	}

	return &islipAllocator{
		numRequesters: numRequesters,
		numResources:  numResources,
		numIterations: numIterations,
		grantPtr:      make([]int, numResources),
		acceptPtr:     make([]int, numRequesters),
	}
}

type islipAllocator struct {
	numRequesters int
	numResources  int
	numIterations int

	// grantPtr[r] is the requester that resource r favors next.
	grantPtr []int

	// acceptPtr[q] is the resource that requester q favors next.
	acceptPtr []int
}

func (a *islipAllocator) Allocate(requests []Request) []Grant {
	requesterMatched := make([]bool, a.numRequesters)
	resourceMatched := make([]bool, a.numResources)

	var grants []Grant

	for iter := 0; iter < a.numIterations; iter++ {
		iterGrants := a.iterate(requests, requesterMatched, resourceMatched)
		if len(iterGrants) == 0 {
			break
		}

		grants = append(grants, iterGrants...)
	}

	return grants
}

func (a *islipAllocator) iterate(
	requests []Request,
	requesterMatched, resourceMatched []bool,
) []Grant {
	// Grant phase: each free resource picks one proposer, starting from its
	// round-robin pointer.
	grantTo := make([]int, a.numResources)
	for r := range grantTo {
		grantTo[r] = -1
	}

	for r := 0; r < a.numResources; r++ {
		if resourceMatched[r] {
			continue
		}

		grantTo[r] = a.pickRequester(r, requests, requesterMatched)
	}

	// Accept phase: each requester accepts at most one grant, starting from
	// its round-robin pointer.
	var grants []Grant

	for q := 0; q < a.numRequesters; q++ {
		if requesterMatched[q] {
			continue
		}

		r := a.pickResource(q, grantTo)
		if r < 0 {
			continue
		}

		requesterMatched[q] = true
		resourceMatched[r] = true
		a.grantPtr[r] = (q + 1) % a.numRequesters
		a.acceptPtr[q] = (r + 1) % a.numResources
		grants = append(grants, Grant{Requester: q, Resource: r})
	}

	return grants
}

func (a *islipAllocator) pickRequester(
	r int,
	requests []Request,
	requesterMatched []bool,
) int {
	for i := 0; i < a.numRequesters; i++ {
		q := (a.grantPtr[r] + i) % a.numRequesters

		if requesterMatched[q] {
			continue
		}

		if requestExists(requests, q, r) {
			return q
		}
	}

	return -1
}

func (a *islipAllocator) pickResource(q int, grantTo []int) int {
	for i := 0; i < a.numResources; i++ {
		r := (a.acceptPtr[q] + i) % a.numResources

		if grantTo[r] == q {
			return r
		}
	}

	return -1
}

func requestExists(requests []Request, q, r int) bool {
	for _, req := range requests {
		if req.Requester == q && req.Resource == r {
			return true
		}
	}

	return false
}

// NewFixedPriorityAllocator creates a single-iteration allocator that always
// favors lower-numbered requesters and resources.
func NewFixedPriorityAllocator(numRequesters, numResources int) Allocator {
	return &priorityAllocator{
		numRequesters: numRequesters,
		numResources:  numResources,
	}
}

// NewRotatingPriorityAllocator creates a single-iteration allocator whose
// priority origin rotates by one on every allocation round, regardless of
// whether a grant succeeded.
func NewRotatingPriorityAllocator(numRequesters, numResources int) Allocator {
	return &priorityAllocator{
		numRequesters: numRequesters,
		numResources:  numResources,
		rotating:      true,
	}
}

type priorityAllocator struct {
	numRequesters int
	numResources  int
	rotating      bool
	origin        int
}

func (a *priorityAllocator) Allocate(requests []Request) []Grant {
	requesterMatched := make([]bool, a.numRequesters)
	resourceMatched := make([]bool, a.numResources)

	var grants []Grant

	for i := 0; i < a.numRequesters; i++ {
		q := (a.origin + i) % a.numRequesters

		if requesterMatched[q] {
			continue
		}

		for _, req := range requests {
			if req.Requester != q {
				continue
			}

			if resourceMatched[req.Resource] {
				continue
			}

			requesterMatched[q] = true
			resourceMatched[req.Resource] = true
			grants = append(grants, Grant{Requester: q, Resource: req.Resource})

			break
		}
	}

	if a.rotating {
		a.origin = (a.origin + 1) % a.numRequesters
	}

	return grants
}
