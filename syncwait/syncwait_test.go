package syncwait_test

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/floodsnet/floodprep/interface/landing"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/syncwait"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Waiter", func() {
	const (
		name     = "EMSR501_AOI01_202106_Seasonal_JRC"
		interval = 10 * time.Second
		maxWait  = 60 * time.Second
	)
	var (
		ctx     context.Context
		dir     string
		clock   *service.ManualClock
		probes  int
		valid   func(location string) bool
		onSleep []func()
		waiter  *syncwait.Waiter
	)

	touch := func(base string) func() {
		return func() {
			Expect(ioutil.WriteFile(filepath.Join(dir, base), []byte("tif"), 0644)).To(Succeed())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dir, err = ioutil.TempDir("", "syncwait")
		Expect(err).NotTo(HaveOccurred())
		clock = service.NewManualClock(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
		probes = 0
		valid = func(string) bool { return true }
		onSleep = nil
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	JustBeforeEach(func() {
		sleeps := 0
		clock.OnSleep = func(time.Time) {
			if sleeps < len(onSleep) && onSleep[sleeps] != nil {
				onSleep[sleeps]()
			}
			sleeps++
		}
		waiter = syncwait.New(landing.Local{},
			syncwait.WithClock(clock),
			syncwait.WithProbe(func(ctx context.Context, location string) error {
				probes++
				if !valid(location) {
					return errors.New("TIFFReadDirectory: truncated file")
				}
				return nil
			}))
	})

	Context("when the file lands after a while", func() {
		BeforeEach(func() {
			onSleep = []func(){nil, nil, touch(name + ".tif")}
		})

		It("should return its location", func() {
			landed, err := waiter.AwaitValid(ctx, dir, name, interval, maxWait)
			Expect(err).NotTo(HaveOccurred())
			Expect(landed.Locations).To(Equal([]string{filepath.Join(dir, name+".tif")}))
			Expect(landed.Split).To(BeFalse())
			Expect(landed.Degraded).To(BeEmpty())
			Expect(landed.Waited).To(Equal(30 * time.Second))
			Expect(probes).To(Equal(1))
		})
	})

	Context("when the file never lands", func() {
		It("should fail with an AcquisitionTimeoutError", func() {
			_, err := waiter.AwaitValid(ctx, dir, name, interval, maxWait)
			var timeout service.AcquisitionTimeoutError
			Expect(errors.As(err, &timeout)).To(BeTrue())
			Expect(timeout.Path).To(Equal(filepath.Join(dir, name+".tif")))
			Expect(timeout.Waited).To(Equal(maxWait))
			Expect(service.EventScoped(err)).To(BeTrue())
			Expect(probes).To(BeZero())
		})
	})

	Context("when the remote service split the file", func() {
		BeforeEach(func() {
			onSleep = []func(){nil, func() {
				touch(name + "-0000000000-0000012544.tif")()
				touch(name + "-0000000000-0000000000.tif")()
				touch("other-0000000000-0000000000.tif")()
			}}
		})

		It("should wait for the tiles instead", func() {
			landed, err := waiter.AwaitValid(ctx, dir, name, interval, maxWait)
			Expect(err).NotTo(HaveOccurred())
			Expect(landed.Split).To(BeTrue())
			Expect(landed.Locations).To(Equal([]string{
				filepath.Join(dir, name+"-0000000000-0000000000.tif"),
				filepath.Join(dir, name+"-0000000000-0000012544.tif"),
			}))
			Expect(probes).To(Equal(2))
		})
	})

	Context("when the file is not readable yet", func() {
		BeforeEach(func() {
			touch(name + ".tif")()
			ready := false
			valid = func(string) bool { return ready }
			onSleep = []func(){nil, func() { ready = true }}
		})

		It("should wait until it is readable", func() {
			landed, err := waiter.AwaitValid(ctx, dir, name, interval, maxWait)
			Expect(err).NotTo(HaveOccurred())
			Expect(landed.Degraded).To(BeEmpty())
			Expect(landed.Waited).To(Equal(20 * time.Second))
			Expect(probes).To(Equal(3))
		})
	})

	Context("when the file stays unreadable", func() {
		BeforeEach(func() {
			valid = func(string) bool { return false }
			onSleep = []func(){nil, nil, nil, touch(name + ".tif")}
		})

		It("should use it anyway once the wait is over", func() {
			landed, err := waiter.AwaitValid(ctx, dir, name, interval, maxWait)
			Expect(err).NotTo(HaveOccurred())
			Expect(landed.Locations).To(HaveLen(1))
			Expect(landed.Degraded).To(HaveLen(1))
			var invalid service.StructuralValidityTimeoutError
			Expect(errors.As(landed.Degraded[0], &invalid)).To(BeTrue())
			Expect(invalid.Path).To(Equal(filepath.Join(dir, name+".tif")))
			// The wait for the file and the wait for its validity share the same budget
			Expect(landed.Waited).To(Equal(maxWait))
			Expect(probes).To(Equal(3))
		})
	})

	Context("when the wait is cancelled", func() {
		It("should stop waiting", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := waiter.AwaitValid(cctx, dir, name, interval, maxWait)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	It("should fetch the landed files into a local directory", func() {
		touch(name + ".tif")()
		landed, err := waiter.AwaitValid(ctx, dir, name, interval, maxWait)
		Expect(err).NotTo(HaveOccurred())
		local := filepath.Join(dir, "raw")
		Expect(os.Mkdir(local, 0755)).To(Succeed())
		paths, err := waiter.Fetch(ctx, landed, local)
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(Equal([]string{filepath.Join(local, name+".tif")}))
		Expect(filepath.Join(local, name+".tif")).To(BeAnExistingFile())
	})
})
