package extract

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validate", func() {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	It("errors on a missing required field", func() {
		fields := FieldSet{
			FieldEntityName: {Value: nil, Confidence: 0.0},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
		}

		result := Validate(fields, "some text", DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusError))
		Expect(result.Errors).To(HaveLen(1))
		Expect(result.Errors[0].Field).To(Equal(FieldEntityName))
	})

	It("errors on a required field below the confidence threshold", func() {
		fields := FieldSet{
			FieldEntityName: {Value: "Acme", Confidence: 0.3},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
		}

		result := Validate(fields, "some text", DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusError))
		Expect(result.Errors[0].Field).To(Equal(FieldEntityName))
	})

	It("is valid when required fields are confident", func() {
		fields := FieldSet{
			FieldEntityName: {Value: "Acme", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
		}

		result := Validate(fields, "Acme is a tech company.", DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusValid))
	})

	It("warns on a past due date instead of erroring", func() {
		yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
		fields := FieldSet{
			FieldEntityName: {Value: "Acme", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
			FieldDueDate:    {Value: yesterday, Confidence: 0.9},
		}

		result := Validate(fields, "some text", DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusWarning))
		Expect(result.Errors).To(BeEmpty())
		Expect(result.Warnings).To(HaveLen(1))
	})

	It("flags an unparseable due date for review", func() {
		fields := FieldSet{
			FieldEntityName: {Value: "Acme", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
			FieldDueDate:    {Value: "end of Q2", Confidence: 0.7},
		}

		result := Validate(fields, "some text", DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusWarning))
		Expect(result.FieldsRequiringReview).To(ContainElement(FieldDueDate))
	})

	It("flags a malformed contact email for review", func() {
		fields := FieldSet{
			FieldEntityName: {Value: "Acme", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
			FieldContacts:   {Value: map[string]any{"email": "not-an-email"}, Confidence: 0.8},
		}

		result := Validate(fields, "some text", DefaultConfidenceThreshold, now)
		Expect(result.FieldsRequiringReview).To(ContainElement(FieldContacts))
	})

	It("flags a well-formed email when the source obfuscated it", func() {
		fields := FieldSet{
			FieldEntityName: {Value: "Acme", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
			FieldContacts:   {Value: map[string]any{"email": "john@acme.com"}, Confidence: 0.8},
		}

		result := Validate(fields, "Contact john [at] acme.com for details.", DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusWarning))
		Expect(result.FieldsRequiringReview).To(ContainElement(FieldContacts))
	})

	It("accepts a well-formed email from a plain source", func() {
		fields := FieldSet{
			FieldEntityName: {Value: "Acme", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
			FieldContacts:   {Value: map[string]any{"email": "john@acme.com"}, Confidence: 0.8},
		}

		result := Validate(fields, "Contact john@acme.com for details.", DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusValid))
	})

	It("flags the entity name when two distinct corporate names appear", func() {
		source := "Acme Corp issued this request. Payment goes to Acme Corporation."
		fields := FieldSet{
			FieldEntityName: {Value: "Acme Corp", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
		}

		result := Validate(fields, source, DefaultConfidenceThreshold, now)
		Expect(result.Status).To(Equal(StatusWarning))
		Expect(result.FieldsRequiringReview).To(ContainElement(FieldEntityName))
	})

	It("does not flag one corporate name repeated", func() {
		source := "Acme Corp issued this request. Acme Corp expects a reply."
		fields := FieldSet{
			FieldEntityName: {Value: "Acme Corp", Confidence: 0.95},
			FieldIndustry:   {Value: "Tech", Confidence: 0.9},
		}

		result := Validate(fields, source, DefaultConfidenceThreshold, now)
		Expect(result.FieldsRequiringReview).NotTo(ContainElement(FieldEntityName))
	})
})
