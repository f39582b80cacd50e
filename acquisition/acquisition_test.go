package acquisition_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/floodsnet/floodprep/acquisition"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/floodsnet/floodprep/interface/imagery/memory"
	"github.com/floodsnet/floodprep/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// recorder implements acquisition.Listener
type recorder struct {
	mu        sync.Mutex
	submitted []string
	updates   []common.TaskState
}

func (r *recorder) TaskSubmitted(ctx context.Context, t acquisition.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, t.Name())
}

func (r *recorder) TaskUpdated(ctx context.Context, t acquisition.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, t.State)
}

var _ = Describe("Manager", func() {
	var (
		ctx      context.Context
		clock    *service.ManualClock
		svc      *memory.Service
		rec      *recorder
		manager  *acquisition.Manager
		produced []string
		options  []memory.Option
	)
	event := common.Event{
		Dataset: common.DatasetWorldFloods,
		Key:     "EMSR501_AOI01",
		BBox:    common.BBox{West: 10, South: 45, East: 10.5, North: 45.5},
		Dates:   common.NewDateRange(time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), 0, 1),
	}
	tile := common.BBox{West: 9.8, South: 44.9, East: 11.2, North: 45.9}
	opticalIndex := "20210615T101559_20210615T102138_T32TNR"
	radarIndex := "S1A_IW_GRDH_1SDV_20210615T053345_20210615T053410_038357_048695_4B3C"

	BeforeEach(func() {
		ctx = context.Background()
		clock = service.NewManualClock(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
		rec = &recorder{}
		produced = nil
		options = []memory.Option{
			memory.WithLatency(4),
			memory.WithImages(imagery.CollectionOptical,
				imagery.Image{Index: opticalIndex, Start: time.Date(2021, 6, 15, 10, 15, 59, 0, time.UTC), Footprint: tile},
				imagery.Image{Index: "20210620T101559_20210620T102138_T32TNR", Start: time.Date(2021, 6, 20, 10, 15, 59, 0, time.UTC), Footprint: tile},
			),
			memory.WithImages(imagery.CollectionRadar,
				imagery.Image{Index: radarIndex, Start: time.Date(2021, 6, 15, 5, 33, 45, 0, time.UTC), Footprint: tile},
				imagery.Image{Index: "S1A_IW_GRDH_1SDV_20210615T053410_20210615T053435_038357_048695_5C1D", Start: time.Date(2021, 6, 15, 5, 34, 10, 0, time.UTC),
					Footprint: common.BBox{West: 9.5, South: 46.3, East: 12.9, North: 48.1}},
			),
		}
	})

	JustBeforeEach(func() {
		svc = memory.New(func(ctx context.Context, req imagery.ExportRequest) error {
			produced = append(produced, req.Name)
			return nil
		}, options...)
		manager = acquisition.NewManager(svc,
			acquisition.WithClock(clock),
			acquisition.WithPollInterval(10*time.Second),
			acquisition.WithListener(rec))
	})

	Context("submitting optical and radar layers", func() {
		It("should export every image acquired within the dates", func() {
			tasks, err := manager.Submit(ctx, common.KindS2, event, event.BBox, event.Dates, "S2_WORLDFLOODS")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(1))
			Expect(tasks[0].Name()).To(Equal("EMSR501_AOI01_" + opticalIndex + "_S2"))
			Expect(tasks[0].State).To(Equal(common.TaskQueued))
			Expect(tasks[0].Request.Folder).To(Equal("S2_WORLDFLOODS"))
			Expect(tasks[0].Request.Image.Collection).To(Equal(imagery.CollectionOptical))

			tasks, err = manager.Submit(ctx, common.KindS1, event, event.BBox, event.Dates, "S1_WORLDFLOODS")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(1))
			info, err := common.Info(tasks[0].Name())
			Expect(err).NotTo(HaveOccurred())
			Expect(info["ID"]).To(Equal(event.ID()))
			Expect(info["KIND"]).To(Equal("S1"))
			Expect(rec.submitted).To(HaveLen(2))
		})

		It("should return no task when no image is found", func() {
			ev := event
			ev.Dates = common.NewDateRange(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 0, 1)
			tasks, err := manager.Submit(ctx, common.KindS2, ev, ev.BBox, ev.Dates, "S2")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(BeEmpty())
			Expect(svc.Submitted()).To(BeEmpty())
		})
	})

	Context("submitting the water history", func() {
		It("should export one composition windowed on the season of the flood", func() {
			tasks, err := manager.Submit(ctx, common.KindJRC, event, event.BBox, event.Dates, "JRC")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(1))
			Expect(tasks[0].Name()).To(Equal("EMSR501_AOI01_202106_Seasonal_JRC"))
			w := tasks[0].Request.Window
			Expect(w).NotTo(BeNil())
			Expect(w.FloodYear).To(Equal(2021))
			Expect(w.Season).To(Equal(6))
			Expect(w.PermanentYears).To(Equal([2]int{2019, 2020}))
		})

		It("should cap the flood year", func() {
			m := acquisition.NewManager(svc, acquisition.WithClock(clock), acquisition.WithHistoryMaxYear(2020))
			tasks, err := m.Submit(ctx, common.KindJRC, event, event.BBox, event.Dates, "JRC")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks[0].Request.Window.FloodYear).To(Equal(2020))
			Expect(tasks[0].Name()).To(Equal("EMSR501_AOI01_202006_Seasonal_JRC"))
		})

		It("should refuse the layers that are not acquired remotely", func() {
			_, err := manager.Submit(ctx, common.KindGT, event, event.BBox, event.Dates, "GT")
			Expect(err).To(HaveOccurred())
		})

		It("should refuse job names longer than the limit", func() {
			ev := event
			ev.Key = string(make([]byte, 120))
			_, err := manager.Submit(ctx, common.KindJRC, ev, ev.BBox, ev.Dates, "JRC")
			Expect(err).To(HaveOccurred())
			Expect(service.Fatal(err)).To(BeTrue())
			Expect(svc.Submitted()).To(BeEmpty())
		})
	})

	Context("polling", func() {
		It("should block until every task is terminated", func() {
			var tasks []*acquisition.Task
			for _, kind := range []common.AssetKind{common.KindS2, common.KindS1, common.KindJRC} {
				t, err := manager.Submit(ctx, kind, event, event.BBox, event.Dates, "folder")
				Expect(err).NotTo(HaveOccurred())
				tasks = append(tasks, t...)
			}
			// Every task is submitted before the first poll
			Expect(svc.Submitted()).To(HaveLen(3))
			Expect(produced).To(BeEmpty())

			failed, err := manager.PollAll(ctx, tasks)
			Expect(err).NotTo(HaveOccurred())
			Expect(failed).To(BeEmpty())
			for _, t := range tasks {
				Expect(t.State).To(Equal(common.TaskCompleted))
			}
			Expect(produced).To(HaveLen(3))
			// 5 polls: 2 queued, 2 running, 1 completed
			Expect(clock.Slept()).To(Equal(40 * time.Second))
			Expect(rec.updates).To(Equal([]common.TaskState{
				common.TaskRunning, common.TaskRunning, common.TaskRunning,
				common.TaskCompleted, common.TaskCompleted, common.TaskCompleted,
			}))
		})

		Context("when a job fails", func() {
			BeforeEach(func() {
				options = append(options, memory.WithFailure("EMSR501_AOI01_202106_Seasonal_JRC", "computation timed out"))
			})

			It("should surface the failure without aborting the other tasks", func() {
				jrc, err := manager.Submit(ctx, common.KindJRC, event, event.BBox, event.Dates, "JRC")
				Expect(err).NotTo(HaveOccurred())
				s2, err := manager.Submit(ctx, common.KindS2, event, event.BBox, event.Dates, "S2")
				Expect(err).NotTo(HaveOccurred())
				tasks := append(jrc, s2...)

				failed, err := manager.PollAll(ctx, tasks)
				Expect(err).NotTo(HaveOccurred())
				Expect(failed).To(HaveLen(1))
				var jobErr service.RemoteJobFailedError
				Expect(errors.As(failed[0], &jobErr)).To(BeTrue())
				Expect(jobErr.Message).To(Equal("computation timed out"))
				Expect(service.EventScoped(failed[0])).To(BeTrue())
				Expect(tasks[0].State).To(Equal(common.TaskFailed))
				Expect(tasks[1].State).To(Equal(common.TaskCompleted))
				Expect(produced).To(Equal([]string{tasks[1].Name()}))
			})
		})

		It("should fail a task unknown to the service", func() {
			tasks := []*acquisition.Task{{Handle: "unknown", Request: imagery.ExportRequest{Name: "lost"}, State: common.TaskQueued}}
			failed, err := manager.PollAll(ctx, tasks)
			Expect(err).NotTo(HaveOccurred())
			Expect(failed).To(HaveLen(1))
			Expect(tasks[0].State).To(Equal(common.TaskFailed))
		})

		It("should stop waiting when the context is cancelled", func() {
			tasks, err := manager.Submit(ctx, common.KindJRC, event, event.BBox, event.Dates, "JRC")
			Expect(err).NotTo(HaveOccurred())
			cctx, cancel := context.WithCancel(ctx)
			clock.OnSleep = func(time.Time) { cancel() }
			_, err = manager.PollAll(cctx, tasks)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(tasks[0].State.Terminal()).To(BeFalse())
		})

		It("should return immediately without tasks", func() {
			failed, err := manager.PollAll(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(failed).To(BeEmpty())
			Expect(clock.Slept()).To(BeZero())
		})
	})
})
