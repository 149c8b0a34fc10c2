package persistence_test

import (
	. "github.com/dogmatiq/sqlqueue/persistence"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func NewTables()", func() {
	It("returns versioned table names for the queue", func() {
		t := NewTables("orders", 2)

		Expect(t).To(Equal(Tables{
			Queue:      "sqlqueue_v2_queue_orders",
			Unacked:    "sqlqueue_v2_unacked_orders",
			Messages:   "sqlqueue_v2_messages_orders",
			DeadLetter: "sqlqueue_v2_dead_letter_orders",
		}))
	})

	It("sanitizes the queue name", func() {
		t := NewTables("order-events.v1", DefaultSchemaVersion)
		Expect(t.Queue).To(Equal("sqlqueue_v1_queue_order_events_v1"))
	})

	It("panics if the name is empty", func() {
		Expect(func() {
			NewTables("", DefaultSchemaVersion)
		}).To(Panic())
	})

	It("panics if the schema version is not positive", func() {
		Expect(func() {
			NewTables("orders", 0)
		}).To(Panic())
	})
})

var _ = Describe("type Tables", func() {
	Describe("func Templates()", func() {
		It("returns the template table names for the same schema version", func() {
			t := NewTables("orders", 3).Templates()

			Expect(t).To(Equal(Tables{
				Queue:      "sqlqueue_v3_queue_template",
				Unacked:    "sqlqueue_v3_unacked_template",
				Messages:   "sqlqueue_v3_messages_template",
				DeadLetter: "sqlqueue_v3_dead_letter_template",
			}))
		})
	})
})
