package arbitration

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/radsim-arch/radsim/sim"
)

func mustBeMatching(grants []Grant) {
	requesterSeen := make(map[int]bool)
	resourceSeen := make(map[int]bool)

	for _, g := range grants {
		ExpectWithOffset(1, requesterSeen[g.Requester]).To(BeFalse())
		ExpectWithOffset(1, resourceSeen[g.Resource]).To(BeFalse())
		requesterSeen[g.Requester] = true
		resourceSeen[g.Resource] = true
	}
}

var _ = Describe("NewAllocator", func() {
	It("should build the known policies", func() {
		for _, policy := range []string{"islip", "fixed_rr", "priority_rr"} {
			a, err := NewAllocator(policy, 4, 4, 1)
			Expect(err).To(BeNil())
			Expect(a).NotTo(BeNil())
		}
	})

	It("should reject unknown policies", func() {
		_, err := NewAllocator("lottery", 4, 4, 1)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ISLIP Allocator", func() {
	It("should grant an uncontended request", func() {
		a := NewISLIPAllocator(4, 4, 1)

		grants := a.Allocate([]Request{{Requester: 2, Resource: 3}})

		Expect(grants).To(Equal([]Grant{{Requester: 2, Resource: 3}}))
	})

	It("should produce a matching under contention", func() {
		a := NewISLIPAllocator(4, 4, 2)

		requests := []Request{
			{Requester: 0, Resource: 0},
			{Requester: 1, Resource: 0},
			{Requester: 1, Resource: 1},
			{Requester: 2, Resource: 0},
			{Requester: 3, Resource: 1},
		}

		grants := a.Allocate(requests)

		mustBeMatching(grants)
		Expect(len(grants)).To(BeNumerically(">=", 2))
	})

	It("should not starve a contending requester", func() {
		a := NewISLIPAllocator(2, 1, 1)

		winners := make(map[int]int)
		for round := 0; round < 10; round++ {
			grants := a.Allocate([]Request{
				{Requester: 0, Resource: 0},
				{Requester: 1, Resource: 0},
			})

			Expect(grants).To(HaveLen(1))
			winners[grants[0].Requester]++
		}

		Expect(winners[0]).To(BeNumerically(">", 0))
		Expect(winners[1]).To(BeNumerically(">", 0))
	})

	It("should fill the matching with extra iterations", func() {
		// In the first iteration both resources grant to requester 0,
		// which can only accept one of them. The second iteration lets
		// resource 1 grant to requester 2.
		requests := []Request{
			{Requester: 0, Resource: 0},
			{Requester: 0, Resource: 1},
			{Requester: 1, Resource: 0},
			{Requester: 2, Resource: 1},
		}

		oneIter := NewISLIPAllocator(3, 2, 1).Allocate(requests)
		twoIter := NewISLIPAllocator(3, 2, 2).Allocate(requests)

		mustBeMatching(oneIter)
		mustBeMatching(twoIter)
		Expect(twoIter).To(HaveLen(2))
	})
})

var _ = Describe("Fixed Priority Allocator", func() {
	It("should always favor the lowest requester", func() {
		a := NewFixedPriorityAllocator(2, 1)

		for round := 0; round < 5; round++ {
			grants := a.Allocate([]Request{
				{Requester: 0, Resource: 0},
				{Requester: 1, Resource: 0},
			})

			Expect(grants).To(Equal([]Grant{{Requester: 0, Resource: 0}}))
		}
	})
})

var _ = Describe("Rotating Priority Allocator", func() {
	It("should rotate the favored requester each round", func() {
		a := NewRotatingPriorityAllocator(2, 1)

		first := a.Allocate([]Request{
			{Requester: 0, Resource: 0},
			{Requester: 1, Resource: 0},
		})
		second := a.Allocate([]Request{
			{Requester: 0, Resource: 0},
			{Requester: 1, Resource: 0},
		})

		Expect(first).To(Equal([]Grant{{Requester: 0, Resource: 0}}))
		Expect(second).To(Equal([]Grant{{Requester: 1, Resource: 0}}))
	})
})

var _ = Describe("XBar Arbiter", func() {
	It("should skip empty buffers and rotate priority", func() {
		a := NewXBarArbiter()

		bufs := make([]sim.Buffer, 3)
		for i := range bufs {
			bufs[i] = sim.NewBuffer(fmt.Sprintf("Buf[%d]", i), 4)
			a.AddBuffer(bufs[i])
		}

		bufs[0].Push(1)
		bufs[2].Push(1)

		granted := a.Arbitrate()
		Expect(granted).To(HaveLen(2))
		Expect(granted[0]).To(BeIdenticalTo(bufs[0]))
		Expect(granted[1]).To(BeIdenticalTo(bufs[2]))

		granted = a.Arbitrate()
		Expect(granted[0]).To(BeIdenticalTo(bufs[2]))
	})
})
