package observable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joamaki/goreactive/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/livecursor/internal/testutils"
)

func TestObservable(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Observable")
}

var _ = Describe("Subscriber", func() {
	It("should deliver values until a terminal notification", func() {
		rec := testutils.NewRecorder[int]()
		s := NewSubscriber[int](rec)
		s.Next(1)
		s.Next(2)
		s.Complete()
		s.Next(3)
		s.Complete()
		s.Error(errors.New("late"))

		Expect(rec.Values()).To(Equal([]int{1, 2}))
		Expect(rec.Completions()).To(Equal(1))
		Expect(rec.Errors()).To(BeEmpty())
		Expect(s.Closed()).To(BeTrue())
	})

	It("should run teardowns once on unsubscribe", func() {
		calls := 0
		s := NewSubscriber[int](nil)
		s.Add(func() { calls++ })
		s.Add(nil)
		s.Unsubscribe()
		s.Unsubscribe()
		Expect(calls).To(Equal(1))

		s.Add(func() { calls++ })
		Expect(calls).To(Equal(2))
	})

	It("should not run teardowns on completion", func() {
		calls := 0
		s := NewSubscriber[int](nil)
		s.Add(func() { calls++ })
		s.Complete()
		Expect(calls).To(Equal(0))
		s.Unsubscribe()
		Expect(calls).To(Equal(1))
	})
})

var _ = Describe("Observable", func() {
	It("should emit the values of Of", func() {
		rec := testutils.NewRecorder[string]()
		Of("a", "b").Subscribe(rec)
		Expect(rec.Values()).To(Equal([]string{"a", "b"}))
		Expect(rec.Completions()).To(Equal(1))
	})

	It("should emit the error of Throw", func() {
		rec := testutils.NewRecorder[string]()
		Throw[string](errors.New("boom")).Subscribe(rec)
		Expect(rec.Errors()).To(HaveLen(1))
		Expect(rec.Errors()[0]).To(MatchError("boom"))
	})

	It("should lift an operator", func() {
		double := func(src Observable[int]) Observable[int] {
			return Lift(src, func(dst Observer[int]) Observer[int] {
				return ObserverFuncs[int]{
					NextFunc:     func(v int) { dst.Next(2 * v) },
					ErrorFunc:    dst.Error,
					CompleteFunc: dst.Complete,
				}
			})
		}

		rec := testutils.NewRecorder[int]()
		double(Of(1, 2, 3)).Subscribe(rec)
		Expect(rec.Values()).To(Equal([]int{2, 4, 6}))
		Expect(rec.Completions()).To(Equal(1))
	})

	It("should unsubscribe from the source when the lifted observable is unsubscribed", func() {
		subject := NewSubject[int]()
		lifted := Lift(subject, func(dst Observer[int]) Observer[int] { return dst })

		rec := testutils.NewRecorder[int]()
		sub := lifted.Subscribe(rec)
		Expect(subject.Len()).To(Equal(1))
		subject.Next(1)
		sub.Unsubscribe()
		Expect(subject.Len()).To(Equal(0))
		subject.Next(2)
		Expect(rec.Values()).To(Equal([]int{1}))
	})
})

var _ = Describe("Subject", func() {
	var subject *Subject[int]

	BeforeEach(func() {
		subject = NewSubject[int]()
	})

	It("should broadcast to all observers in subscription order", func() {
		order := []string{}
		subject.Subscribe(ObserverFuncs[int]{NextFunc: func(int) { order = append(order, "a") }})
		subject.Subscribe(ObserverFuncs[int]{NextFunc: func(int) { order = append(order, "b") }})
		subject.Next(1)
		subject.Next(2)
		Expect(order).To(Equal([]string{"a", "b", "a", "b"}))
	})

	It("should complete once and complete late subscribers", func() {
		rec := testutils.NewRecorder[int]()
		subject.Subscribe(rec)
		subject.Complete()
		subject.Complete()
		subject.Next(1)
		Expect(rec.Completions()).To(Equal(1))
		Expect(rec.Values()).To(BeEmpty())
		Expect(subject.Closed()).To(BeTrue())

		late := testutils.NewRecorder[int]()
		sub := subject.Subscribe(late)
		Expect(late.Completions()).To(Equal(1))
		Expect(sub.Closed()).To(BeTrue())
	})

	It("should replay the error to late subscribers", func() {
		subject.Error(errors.New("boom"))
		late := testutils.NewRecorder[int]()
		subject.AsObservable().Subscribe(late)
		Expect(late.Errors()).To(HaveLen(1))
	})

	It("should drop unsubscribed observers", func() {
		rec := testutils.NewRecorder[int]()
		sub := subject.AsObservable().Subscribe(rec)
		subject.Next(1)
		sub.Unsubscribe()
		subject.Next(2)
		Expect(rec.Values()).To(Equal([]int{1}))
		Expect(subject.Len()).To(Equal(0))
	})
})

var _ = Describe("Serial", func() {
	It("should run re-entrant work after the current item", func() {
		q := &Serial{}
		order := []int{}
		q.Do(func() {
			order = append(order, 1)
			q.Do(func() { order = append(order, 3) })
			order = append(order, 2)
		})
		q.Do(func() { order = append(order, 4) })
		Expect(order).To(Equal([]int{1, 2, 3, 4}))
	})

	It("should keep push order across drains", func() {
		q := &Serial{}
		order := []int{}
		q.Push(func() { order = append(order, 1) })
		q.Push(func() { order = append(order, 2) })
		Expect(order).To(BeEmpty())
		q.Drain()
		Expect(order).To(Equal([]int{1, 2}))
	})
	It("should report idleness", func() {
		q := &Serial{}
		Expect(q.Idle()).To(BeTrue())
		q.Push(func() {})
		Expect(q.Idle()).To(BeFalse())
		q.Do(func() { Expect(q.Idle()).To(BeFalse()) })
		Expect(q.Idle()).To(BeTrue())
	})
})

var _ = Describe("Stream", func() {
	It("should observe a source until it completes", func() {
		values := []int{}
		err := Observe[int](context.Background(), Of(1, 2, 3), func(v int) error {
			values = append(values, v)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(Equal([]int{1, 2, 3}))
	})

	It("should return the error of the source", func() {
		err := Throw[int](errors.New("boom")).Observe(context.Background(), func(int) error { return nil })
		Expect(err).To(MatchError("boom"))
	})

	It("should stop at the first error of next and unsubscribe", func() {
		subject := NewSubject[int]()
		boom := errors.New("boom")
		done := make(chan error, 1)
		seen := make(chan int, 4)
		go func() {
			done <- subject.Observe(context.Background(), func(v int) error {
				seen <- v
				if v == 2 {
					return boom
				}
				return nil
			})
		}()

		Eventually(subject.Len, time.Second, 10*time.Millisecond).Should(Equal(1))
		subject.Next(1)
		subject.Next(2)
		subject.Next(3)
		Eventually(done, time.Second, 10*time.Millisecond).Should(Receive(MatchError(boom)))
		Expect(subject.Len()).To(Equal(0))
		Expect(seen).To(HaveLen(2))
	})

	It("should unsubscribe when the context is cancelled", func() {
		subject := NewSubject[int]()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- subject.AsObservable().Observe(ctx, func(int) error { return nil }) }()

		Eventually(subject.Len, time.Second, 10*time.Millisecond).Should(Equal(1))
		cancel()
		Eventually(done, time.Second, 10*time.Millisecond).Should(Receive(MatchError(context.Canceled)))
		Expect(subject.Len()).To(Equal(0))
	})

	It("should compose with stream operators", func() {
		values := []int{}
		err := stream.Map(Of(1, 2), func(v int) int { return v * 10 }).Observe(context.Background(),
			func(v int) error {
				values = append(values, v)
				return nil
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(Equal([]int{10, 20}))
	})

	It("should subscribe to a stream", func() {
		rec := testutils.NewRecorder[int]()
		FromStream(stream.Map(Of(1, 2), func(v int) int { return v + 1 })).Subscribe(rec)
		Eventually(rec.Completions, time.Second, 10*time.Millisecond).Should(Equal(1))
		Expect(rec.Values()).To(Equal([]int{2, 3}))

		rec = testutils.NewRecorder[int]()
		FromStream[int](Throw[int](errors.New("boom"))).Subscribe(rec)
		Eventually(rec.Errors, time.Second, 10*time.Millisecond).Should(HaveLen(1))
	})

	It("should cancel the stream on unsubscribe", func() {
		subject := NewSubject[int]()
		rec := testutils.NewRecorder[int]()
		sub := FromStream[int](subject).Subscribe(rec)
		Eventually(subject.Len, time.Second, 10*time.Millisecond).Should(Equal(1))
		subject.Next(1)
		Eventually(rec.Values, time.Second, 10*time.Millisecond).Should(Equal([]int{1}))

		sub.Unsubscribe()
		Eventually(subject.Len, time.Second, 10*time.Millisecond).Should(Equal(0))
		Expect(rec.Completions()).To(Equal(0))
		Expect(rec.Errors()).To(BeEmpty())
	})
})
