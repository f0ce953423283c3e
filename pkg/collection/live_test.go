package collection

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/livecursor/internal/testutils"
	"github.com/l7mp/livecursor/pkg/cursor"
	"github.com/l7mp/livecursor/pkg/object"
	"github.com/l7mp/livecursor/pkg/selector"
)

var _ = Describe("ObservableCursor over a collection", func() {
	var (
		coll *Collection
		oc   *cursor.ObservableCursor[object.Document]
	)

	BeforeEach(func() {
		logger := testutils.NewLogger(loglevel)
		coll = New("todos", Options{Logger: logger})
		Expect(coll.Insert(testutils.Todo("a", "first", 3))).To(Succeed())
		Expect(coll.Insert(testutils.Todo("b", "second", 1))).To(Succeed())
		oc = cursor.New(cursor.Cursor[object.Document](coll.Find(FindOptions{Less: ByField("prio")})),
			cursor.Options{Logger: logger})
	})

	AfterEach(func() {
		oc.Stop()
		oc.Dispose()
	})

	It("should broadcast the ordered result set", func() {
		rec := testutils.NewRecorder[[]object.Document]()
		oc.Subscribe(rec)
		Eventually(rec.Len, timeout, interval).Should(Equal(1))
		Expect(names(rec.Last())).To(Equal([]string{"b", "a"}))

		Expect(coll.Insert(testutils.Todo("c", "third", 2))).To(Succeed())
		Eventually(func() []string { return names(rec.Last()) }, timeout, interval).
			Should(Equal([]string{"b", "c", "a"}))

		Expect(coll.Update(testutils.Todo("b", "second", 9))).To(Succeed())
		Eventually(func() []string { return names(rec.Last()) }, timeout, interval).
			Should(Equal([]string{"c", "a", "b"}))

		Expect(coll.Remove("default", "a")).To(Succeed())
		Eventually(func() []string { return names(rec.Last()) }, timeout, interval).
			Should(Equal([]string{"c", "b"}))
		Expect(oc.Size()).To(Equal(2))
	})

	It("should select fields of the live result set", func() {
		rec := testutils.NewRecorder[any]()
		selector.Select[[]object.Document](oc, "title").Subscribe(rec)
		Eventually(rec.Values, timeout, interval).Should(Equal([]any{[]any{"second", "first"}}))

		tags := testutils.NewRecorder[any]()
		selector.Select[[]object.Document](oc, "tags").Subscribe(tags)
		Eventually(tags.Values, timeout, interval).Should(Equal([]any{[]any{"t-b", "t-a"}}))
	})

	It("should stop the live query when the last observer leaves", func() {
		sub := oc.Subscribe(testutils.NewRecorder[[]object.Document]())
		Expect(coll.Queries()).To(Equal(1))
		sub.Unsubscribe()
		Expect(oc.Active()).To(BeFalse())
		// the live query stops after the completions, which the initial flush may still be delivering
		Eventually(coll.Queries, timeout, interval).Should(Equal(0))
	})

	It("should report collection failures as upstream errors", func() {
		rec := testutils.NewRecorder[[]object.Document]()
		oc.Subscribe(rec)
		Eventually(rec.Len, timeout, interval).Should(Equal(1))

		coll.Fail(errors.New("disk full"))
		Eventually(rec.Errors, timeout, interval).Should(HaveLen(1))
		var uerr *cursor.UpstreamError
		Expect(errors.As(rec.Errors()[0], &uerr)).To(BeTrue())
		Expect(oc.Active()).To(BeFalse())
		Expect(coll.Queries()).To(Equal(0))
	})
})
