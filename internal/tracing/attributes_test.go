package tracing_test

import (
	"context"
	"errors"

	. "github.com/dogmatiq/sqlqueue/internal/tracing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var _ = Describe("func End()", func() {
	var (
		recorder *tracetest.SpanRecorder
		provider *sdktrace.TracerProvider
	)

	BeforeEach(func() {
		recorder = tracetest.NewSpanRecorder()
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(recorder),
		)
	})

	It("ends the span", func() {
		_, span := provider.Tracer(InstrumentationName).Start(context.Background(), "<op>")
		End(span, nil)

		spans := recorder.Ended()
		Expect(spans).To(HaveLen(1))
		Expect(spans[0].Status().Code).To(Equal(codes.Unset))
	})

	It("records the error", func() {
		_, span := provider.Tracer(InstrumentationName).Start(context.Background(), "<op>")
		End(span, errors.New("<error>"))

		spans := recorder.Ended()
		Expect(spans).To(HaveLen(1))
		Expect(spans[0].Status().Code).To(Equal(codes.Error))
		Expect(spans[0].Status().Description).To(Equal("<error>"))
		Expect(spans[0].Events()).To(HaveLen(1))
	})
})
