package pipeline_test

import (
	"testing"

	"github.com/airbusgeo/godal"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestPipeline(t *testing.T) {
	godal.RegisterAll()
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Suite")
}
