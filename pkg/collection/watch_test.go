package collection

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/l7mp/livecursor/internal/testutils"
	"github.com/l7mp/livecursor/pkg/object"
)

var _ = Describe("Watch", func() {
	var (
		coll   *Collection
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		coll = New("todos", Options{Logger: testutils.NewLogger(loglevel)})
		Expect(coll.Insert(testutils.Todo("a", "first", 1))).To(Succeed())
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	expectEvent := func(w watch.Interface, t watch.EventType, name string) {
		event, ok := testutils.TryWatch(w, timeout)
		Expect(ok).To(BeTrue())
		Expect(event.Type).To(Equal(t))
		doc, ok := event.Object.(object.Document)
		Expect(ok).To(BeTrue())
		Expect(doc.GetName()).To(Equal(name))
	}

	It("should stream the changes of the result set", func() {
		w, err := coll.Find(FindOptions{}).Watch(ctx)
		Expect(err).NotTo(HaveOccurred())
		expectEvent(w, watch.Added, "a")

		Expect(coll.Insert(testutils.Todo("b", "second", 2))).To(Succeed())
		expectEvent(w, watch.Added, "b")

		Expect(coll.Update(testutils.Todo("a", "changed", 1))).To(Succeed())
		expectEvent(w, watch.Modified, "a")

		Expect(coll.Remove("default", "b")).To(Succeed())
		expectEvent(w, watch.Deleted, "b")

		w.Stop()
		Expect(coll.Queries()).To(Equal(0))
		w.Stop()
	})

	It("should report failures and stop", func() {
		w, err := coll.Find(FindOptions{}).Watch(ctx)
		Expect(err).NotTo(HaveOccurred())
		expectEvent(w, watch.Added, "a")

		coll.Fail(errors.New("disk full"))
		event, ok := testutils.TryWatch(w, timeout)
		Expect(ok).To(BeTrue())
		Expect(event.Type).To(Equal(watch.Error))
		status, ok := event.Object.(*metav1.Status)
		Expect(ok).To(BeTrue())
		Expect(status.Message).To(Equal("disk full"))

		Eventually(func() bool {
			_, ok := <-w.ResultChan()
			return ok
		}, timeout, interval).Should(BeFalse())
	})

	It("should stop when the context is canceled", func() {
		w, err := coll.Find(FindOptions{Filter: FieldEquals("title", "none")}).Watch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(coll.Queries()).To(Equal(1))

		cancel()
		Eventually(func() bool {
			_, ok := <-w.ResultChan()
			return ok
		}, timeout, interval).Should(BeFalse())
		Eventually(coll.Queries, timeout, interval).Should(Equal(0))
	})
})
