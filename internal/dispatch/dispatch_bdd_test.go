package dispatch

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mco-piccolo/timpani/internal/plan"
	"github.com/mco-piccolo/timpani/internal/task"
	"github.com/mco-piccolo/timpani/internal/workload"
)

func TestDispatch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dispatch Suite")
}

func taskRec(name, node string) *task.Record {
	return &task.Record{
		Name:           name,
		AssignedNodeID: node,
		PeriodUS:       10000,
		RuntimeUS:      2000,
		DeadlineUS:     10000,
	}
}

var _ = Describe("Dispatcher", func() {
	var (
		d *Dispatcher
		p *plan.Plan
	)

	BeforeEach(func() {
		d = New(nil, nil)
		p = plan.New()
		p.Install(workload.New("w1", []*task.Record{taskRec("t1", "n1"), taskRec("t2", "n2")}))
		d.InstallPlan(p)
	})

	Describe("Sync barrier", func() {
		It("should not ack until every known node has called Sync", func() {
			r1, err := d.Sync("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(r1.Ack).To(BeEquivalentTo(0))

			r2, err := d.Sync("n2")
			Expect(err).NotTo(HaveOccurred())
			Expect(r2.Ack).To(BeEquivalentTo(1))
		})

		It("should ignore a node the plan does not name", func() {
			r, err := d.Sync("ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Ack).To(BeEquivalentTo(0))
		})

		It("should keep acking once the barrier has opened", func() {
			d.Sync("n1")
			d.Sync("n2")
			r3, err := d.Sync("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(r3.Ack).To(BeEquivalentTo(1))
		})

		It("should require every node again after ResetBarrier", func() {
			d.Sync("n1")
			d.Sync("n2")
			d.ResetBarrier()
			r, err := d.Sync("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Ack).To(BeEquivalentTo(0))
		})
	})

	Describe("SchedInfo cache", func() {
		It("should serve a non-empty slice for a known node", func() {
			data, err := d.SchedInfo("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).NotTo(BeEmpty())
		})

		It("should return the identical cached payload on repeated calls", func() {
			first, err := d.SchedInfo("n1")
			Expect(err).NotTo(HaveOccurred())
			second, err := d.SchedInfo("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("should serve the identical payload after the same plan is reinstalled", func() {
			first, _ := d.SchedInfo("n1")
			d.InstallPlan(p)
			second, _ := d.SchedInfo("n1")
			Expect(second).To(Equal(first))
			Expect(d.cache).To(HaveLen(1))
		})

		It("should return an empty reply for a node with no plan installed", func() {
			empty := New(nil, nil)
			data, err := empty.SchedInfo("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(BeEmpty())
		})
	})
})
