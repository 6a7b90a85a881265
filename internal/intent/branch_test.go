package intent_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/api-commit-action/internal/intent"
)

var _ = Describe("SourceBranchName", func() {
	It("formats the prefix with a microsecond timestamp", func() {
		now := time.Date(2024, time.December, 31, 23, 59, 58, 7000, time.UTC)
		Expect(intent.SourceBranchName("auto/", now)).To(Equal("auto/2024_12_31-23_59_58_000007"))
	})

	It("gives distinct names to runs in the same second", func() {
		first := time.Date(2024, time.March, 1, 14, 5, 9, 1000, time.UTC)
		second := first.Add(time.Microsecond)

		Expect(intent.SourceBranchName("auto/", first)).NotTo(Equal(intent.SourceBranchName("auto/", second)))
	})

	It("produces names that pass validation", func() {
		name := intent.SourceBranchName("bot/update-", time.Now())
		Expect(intent.ValidateBranchName(name)).To(Succeed())
	})
})

var _ = Describe("ValidateBranchName", func() {
	DescribeTable("accepts well-formed names",
		func(name string) {
			Expect(intent.ValidateBranchName(name)).To(Succeed())
		},
		Entry("simple", "main"),
		Entry("nested", "release/v1.2"),
		Entry("dashes and underscores", "auto/2024_03_01-14_05_09_123456"),
	)

	DescribeTable("rejects names git would refuse",
		func(name string) {
			Expect(intent.ValidateBranchName(name)).NotTo(Succeed())
		},
		Entry("empty", ""),
		Entry("whitespace", "my branch"),
		Entry("double dot", "a..b"),
		Entry("caret", "a^b"),
		Entry("colon", "a:b"),
		Entry("reflog syntax", "a@{1}"),
		Entry("leading slash", "/main"),
		Entry("trailing slash", "main/"),
		Entry("empty component", "a//b"),
		Entry("lock suffix", "main.lock"),
		Entry("trailing dot", "main."),
	)
})

var _ = Describe("NormalizeBranch", func() {
	It("strips refs/heads/ and whitespace", func() {
		Expect(intent.NormalizeBranch("  refs/heads/feature/x ")).To(Equal("feature/x"))
		Expect(intent.NormalizeBranch("main")).To(Equal("main"))
		Expect(intent.NormalizeBranch("refs/heads/")).To(BeEmpty())
	})
})

var _ = Describe("ParseRepository", func() {
	It("splits owner and name", func() {
		repo, err := intent.ParseRepository("rancher/api-commit-action.git")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Owner).To(Equal("rancher"))
		Expect(repo.Name).To(Equal("api-commit-action"))
		Expect(repo.String()).To(Equal("rancher/api-commit-action"))
	})

	DescribeTable("rejects malformed identifiers",
		func(raw string) {
			_, err := intent.ParseRepository(raw)
			Expect(err).To(HaveOccurred())
		},
		Entry("empty", ""),
		Entry("no slash", "rancher"),
		Entry("missing owner", "/repo"),
		Entry("missing name", "rancher/"),
		Entry("too many segments", "a/b/c"),
	)
})
