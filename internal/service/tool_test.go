package service_test

import (
	"time"

	"github.com/cropdesk/cropdesk/internal/service"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("tool service", func() {
	var tools *service.ToolService

	BeforeEach(func() {
		tools = service.NewToolService(newEnv(time.Minute).registry)
	})

	It("lists the registry sorted by key", func() {
		list := tools.List()
		Expect(list).To(HaveLen(2))
		Expect(list[0].Key).To(Equal("flipkart"))
		Expect(list[1].Key).To(Equal("meesho"))
	})

	It("resolves keys case insensitively", func() {
		tool, err := tools.Get("MEESHO")
		Expect(err).To(BeNil())
		Expect(tool.Folder).To(Equal("MeshooCropper"))
	})

	It("fails on an unknown key", func() {
		_, err := tools.Get("amazon")
		var uerr *service.ErrUnknownTool
		Expect(err).To(BeAssignableToTypeOf(uerr))
		Expect(err).To(MatchError(`unknown tool "amazon"`))
	})
})
