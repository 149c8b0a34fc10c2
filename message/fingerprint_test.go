package message_test

import (
	"encoding/json"
	"time"

	. "github.com/dogmatiq/sqlqueue/message"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func Fingerprint()", func() {
	It("returns 32 lowercase hex characters", func() {
		fp, err := Fingerprint(MustNew("<kind>", payload{"<value>"}))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(fp).To(MatchRegexp(`^[0-9a-f]{32}$`))
	})

	It("is deterministic", func() {
		m := MustNew("<kind>", payload{"<value>"})
		Expect(MustFingerprint(m)).To(Equal(MustFingerprint(m)))
	})

	It("ignores the attributes", func() {
		m := MustNew("<kind>", payload{"<value>"})
		n := m.WithMaxAttempts(3)
		n.Attributes.Attempts = 2
		n.Attributes.AckAttempts = 1

		Expect(MustFingerprint(n)).To(Equal(MustFingerprint(m)))
	})

	It("ignores the order of keys within the payload", func() {
		a := Message{Kind: "<kind>", Payload: json.RawMessage(`{"a":1,"b":{"x":1,"y":2}}`)}
		b := Message{Kind: "<kind>", Payload: json.RawMessage(`{"b":{"y":2,"x":1},"a":1}`)}

		Expect(MustFingerprint(a)).To(Equal(MustFingerprint(b)))
	})

	It("preserves numeric precision", func() {
		a := Message{Kind: "<kind>", Payload: json.RawMessage(`{"n":9007199254740993}`)}
		b := Message{Kind: "<kind>", Payload: json.RawMessage(`{"n":9007199254740992}`)}

		Expect(MustFingerprint(a)).NotTo(Equal(MustFingerprint(b)))
	})

	It("differs for different payloads", func() {
		a := MustNew("<kind>", payload{"<a>"})
		b := MustNew("<kind>", payload{"<b>"})

		Expect(MustFingerprint(a)).NotTo(Equal(MustFingerprint(b)))
	})

	It("differs for different kinds", func() {
		a := MustNew("<kind-a>", payload{"<value>"})
		b := MustNew("<kind-b>", payload{"<value>"})

		Expect(MustFingerprint(a)).NotTo(Equal(MustFingerprint(b)))
	})

	It("includes the acknowledgement timeout", func() {
		m := MustNew("<kind>", payload{"<value>"})
		n := m.WithAckTimeout(time.Minute)

		Expect(MustFingerprint(n)).NotTo(Equal(MustFingerprint(m)))
	})
})
