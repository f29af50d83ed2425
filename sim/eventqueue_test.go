package sim

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("EventQueueImpl", func() {
	var (
		mockCtrl *gomock.Controller
		queue    *EventQueueImpl
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewEventQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pop in order", func() {
		numEvents := 100
		for i := 0; i < numEvents; i++ {
			event := NewMockEvent(mockCtrl)
			event.EXPECT().
				Time().
				Return(VTimeInSec(rand.Float64() / 1e8)).
				AnyTimes()
			queue.Push(event)
		}

		now := VTimeInSec(-1)
		for i := 0; i < numEvents; i++ {
			event := queue.Pop()
			Expect(event.Time() >= now).To(BeTrue())
			now = event.Time()
		}
	})

	It("should peek the earliest event", func() {
		early := NewMockEvent(mockCtrl)
		early.EXPECT().Time().Return(VTimeInSec(1.0)).AnyTimes()
		late := NewMockEvent(mockCtrl)
		late.EXPECT().Time().Return(VTimeInSec(2.0)).AnyTimes()

		queue.Push(late)
		queue.Push(early)

		Expect(queue.Len()).To(Equal(2))
		Expect(queue.Peek()).To(BeIdenticalTo(early))
		Expect(queue.Len()).To(Equal(2))
	})
})
