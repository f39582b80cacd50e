package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/floodsnet/floodprep/alignment"
	"github.com/floodsnet/floodprep/classification"
	"github.com/floodsnet/floodprep/common"
	db "github.com/floodsnet/floodprep/interface/database"
	"github.com/floodsnet/floodprep/interface/database/sqldb"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/floodsnet/floodprep/interface/imagery/memory"
	"github.com/floodsnet/floodprep/interface/landing"
	"github.com/floodsnet/floodprep/interface/vector"
	"github.com/floodsnet/floodprep/pipeline"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service"
	"github.com/mholt/archiver"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pipeline", func() {
	var (
		ctx     context.Context
		tmp     string
		reg     *registry.Registry
		dirs    registry.Dirs
		clock   *service.ManualClock
		journal *sqldb.BackendDB
		notes   *recorder
		cfg     pipeline.Config
	)

	newPipeline := func(svc imagery.Service, runID string, options ...pipeline.Option) *pipeline.Pipeline {
		return pipeline.New(reg, svc, landing.Local{}, cfg, append([]pipeline.Option{
			pipeline.WithClock(clock),
			pipeline.WithJournal(journal),
			pipeline.WithNotifier(notes),
			pipeline.WithRunID(runID),
		}, options...)...)
	}

	output := func(name string) string {
		return reg.OutputPath(name)
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmp, err = ioutil.TempDir("", "pipeline")
		Expect(err).NotTo(HaveOccurred())
		rcfg := registry.Config{
			InputRoot:     filepath.Join(tmp, "in"),
			GeneratedRoot: filepath.Join(tmp, "generated"),
			OutputDir:     filepath.Join(tmp, "out"),
		}
		Expect(os.MkdirAll(rcfg.OutputDir, 0755)).To(Succeed())
		reg = registry.New(rcfg)
		clock = service.NewManualClock(time.Date(2022, 3, 1, 8, 0, 0, 0, time.UTC))
		journal, err = sqldb.New(ctx, filepath.Join(tmp, "journal.db"))
		Expect(err).NotTo(HaveOccurred())
		notes = &recorder{}
		cfg = pipeline.Config{
			Acquire:          true,
			TaskPollInterval: 20 * time.Second,
			PollInterval:     5 * time.Second,
			MaxWait:          time.Minute,
		}
	})

	AfterEach(func() {
		journal.Close()
		os.RemoveAll(tmp)
	})

	Context("with raster ground truth", func() {
		const key = "EMSR501"
		var downloaded string

		BeforeEach(func() {
			src, err := reg.Source(common.DatasetWorldFloods)
			Expect(err).NotTo(HaveOccurred())
			dirs = src.Dirs()
			downloaded = filepath.Join(reg.Config().InputRoot, "WorldFloods", "downloaded", "test")

			// left half water (2), right half land (1)
			Expect(writeRaster(filepath.Join(downloaded, "gt", key+common.Ext), opticalRegion, opticalRes, 1, godal.Byte,
				func(band, col, row int) float64 {
					if col < 5 {
						return 2
					}
					return 1
				})).To(Succeed())
			Expect(writeRaster(filepath.Join(downloaded, "S2", key+common.Ext), opticalRegion, opticalRes,
				len(imagery.OpticalBands), godal.Int16, opticalValue)).To(Succeed())
			Expect(os.MkdirAll(filepath.Join(downloaded, "meta"), 0755)).To(Succeed())
			Expect(ioutil.WriteFile(filepath.Join(downloaded, "meta", key+".json"),
				[]byte(`{"satellite date": "2021-06-15T10:10:31Z", "bounds": [10, 45, 10.5, 45.5]}`), 0644)).To(Succeed())
		})

		It("should acquire the water history and align every layer on the optical grid", func() {
			svc := memory.New(producer(dirs), memory.WithLatency(2))
			p := newPipeline(svc, "run-1")
			summary, err := p.Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Complete()).To(BeTrue())
			Expect(summary.Events[common.EventDone]).To(Equal(1))
			Expect(summary.Submitted).To(Equal(1))

			By("submitting one summer water history task")
			submitted := svc.Submitted()
			Expect(submitted).To(HaveLen(1))
			Expect(submitted[0].Kind).To(Equal(common.KindJRC))
			Expect(submitted[0].Name).To(Equal("EMSR501_202106_Seasonal_JRC"))
			Expect(submitted[0].Folder).To(Equal("JRC_WORLDFLOODS"))
			Expect(submitted[0].Region).To(Equal(common.BBox{West: 10, South: 45, East: 10.5, North: 45.5}))
			Expect(submitted[0].Window.FloodYear).To(Equal(2021))
			Expect(submitted[0].Window.Season).To(Equal(6))
			Expect(submitted[0].Window.PermanentYears).To(Equal([2]int{2019, 2020}))

			By("reprojecting the optical layer to UTM zone 32N")
			s2 := output("world_floods_EMSR501_S2.tif")
			grid, err := alignment.ReadGrid(s2)
			Expect(err).NotTo(HaveOccurred())
			Expect(grid.Projection).To(ContainSubstring("UTM zone 32N"))
			Expect(grid.GeoTransform[1]).To(Equal(float64(alignment.Resolution)))

			By("aligning the ground truth, the water history and the index on the optical grid")
			gt, gtGrid, err := readBand(output("world_floods_EMSR501_GT.tif"), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(gtGrid.Equal(grid)).To(BeTrue())
			Expect(gtGrid.Projection).To(Equal(grid.Projection))
			Expect(distinct(gt)).To(ContainElements(0.0, 1.0))
			for _, v := range distinct(gt) {
				Expect(v).To(BeElementOf(0.0, 1.0, float64(classification.GroundTruthNoData)))
			}

			jrc, jrcGrid, err := readBand(output("world_floods_EMSR501_JRC.tif"), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(jrcGrid.Equal(grid)).To(BeTrue())
			Expect(distinct(jrc)).To(Equal([]float64{classification.ClassPermanent}))

			ndwi, ndwiGrid, err := readBand(output("EMSR501_20210615_NDWI.tif"), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ndwiGrid.Equal(grid)).To(BeTrue())
			Expect(ndwi[(grid.Height/2)*grid.Width+grid.Width/2]).To(Equal(3333.0))

			By("recording the run")
			status, err := journal.TasksStatus(ctx, "run-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(db.Status{Completed: 1}))
			events, err := journal.Events(ctx, "run-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Status).To(Equal(common.EventDone))
			Expect(events[0].Outputs).To(HaveLen(4))

			messages := notes.Messages()
			Expect(messages).To(HaveLen(1))
			var n pipeline.Notification
			Expect(json.Unmarshal(messages[0], &n)).To(Succeed())
			Expect(n).To(Equal(pipeline.Notification{
				Run:     "run-1",
				Dataset: "world_floods",
				Key:     key,
				Status:  "Done",
				Outputs: events[0].Outputs,
			}))

			By("serving the status of the run")
			server := httptest.NewServer(p.NewHandler())
			defer server.Close()
			resp, err := http.Get(server.URL + "/status")
			Expect(err).NotTo(HaveOccurred())
			var snap pipeline.Snapshot
			Expect(json.NewDecoder(resp.Body).Decode(&snap)).To(Succeed())
			resp.Body.Close()
			Expect(snap.RunID).To(Equal("run-1"))
			Expect(snap.Tasks).To(HaveLen(1))
			Expect(snap.Tasks[0].State).To(Equal(common.TaskCompleted))
			Expect(snap.Counts).To(Equal(map[string]int{"Done": 1}))

			resp, err = http.Get(server.URL + "/status/events/" + key)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp, err = http.Get(server.URL + "/status/events/unknown")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should reuse the outputs of a previous run", func() {
			svc := memory.New(producer(dirs), memory.WithLatency(2))
			_, err := newPipeline(svc, "run-1").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			before, err := snapshotDir(reg.Config().OutputDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(before).To(HaveLen(4))

			summary, err := newPipeline(svc, "run-2").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Events[common.EventSkipped]).To(Equal(1))
			Expect(summary.Submitted).To(Equal(0))
			Expect(svc.Submitted()).To(HaveLen(1))

			after, err := snapshotDir(reg.Config().OutputDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("should only process the present layers if acquisition is disabled", func() {
			cfg.Acquire = false
			svc := memory.New(producer(dirs))
			summary, err := newPipeline(svc, "run-1").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Events[common.EventDone]).To(Equal(1))
			Expect(svc.Submitted()).To(BeEmpty())
			Expect(output("world_floods_EMSR501_S2.tif")).To(BeAnExistingFile())
			Expect(output("world_floods_EMSR501_GT.tif")).To(BeAnExistingFile())
			Expect(output("EMSR501_20210615_NDWI.tif")).To(BeAnExistingFile())
			Expect(output("world_floods_EMSR501_JRC.tif")).NotTo(BeAnExistingFile())
		})

		It("should bundle the outputs of the event", func() {
			cfg.Bundle = true
			svc := memory.New(producer(dirs))
			_, err := newPipeline(svc, "run-1").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(output("world_floods_EMSR501.zip")).To(BeAnExistingFile())
			bundleDir := filepath.Join(tmp, "bundle")
			Expect((&archiver.Zip{MkdirAll: true}).Unarchive(output("world_floods_EMSR501.zip"), bundleDir)).To(Succeed())
			Expect(filepath.Join(bundleDir, "world_floods_EMSR501_JRC.tif")).To(BeAnExistingFile())
		})

		It("should go on without the layer of a failed job", func() {
			svc := memory.New(producer(dirs), memory.WithFailure("EMSR501_202106_Seasonal_JRC", "quota exceeded"))
			summary, err := newPipeline(svc, "run-1").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Complete()).To(BeTrue())
			Expect(summary.Failed).To(Equal(1))
			Expect(summary.Events[common.EventDone]).To(Equal(1))
			Expect(output("world_floods_EMSR501_JRC.tif")).NotTo(BeAnExistingFile())

			tasks, err := journal.Tasks(ctx, "run-1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(1))
			Expect(tasks[0].State).To(Equal(common.TaskFailed))
			Expect(tasks[0].Message).To(Equal("quota exceeded"))
		})

		It("should fail the event whose export never lands", func() {
			svc := memory.New(nil)
			summary, err := newPipeline(svc, "run-1").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Complete()).To(BeFalse())
			Expect(summary.Events[common.EventFailed]).To(Equal(1))
			Expect(output("world_floods_EMSR501_S2.tif")).NotTo(BeAnExistingFile())

			events, err := journal.Events(ctx, "run-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Message).To(ContainSubstring("EMSR501_202106_Seasonal_JRC.tif not found"))
		})

		It("should drop the event without optical nor radar layer", func() {
			cfg.Acquire = false
			Expect(os.Remove(filepath.Join(downloaded, "S2", key+common.Ext))).To(Succeed())
			summary, err := newPipeline(memory.New(nil), "run-1").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Complete()).To(BeTrue())
			Expect(summary.Events[common.EventDropped]).To(Equal(1))
			Expect(output("world_floods_EMSR501_GT.tif")).NotTo(BeAnExistingFile())
		})

		It("should drop the event without metadata", func() {
			Expect(os.Remove(filepath.Join(downloaded, "meta", key+".json"))).To(Succeed())
			svc := memory.New(producer(dirs))
			summary, err := newPipeline(svc, "run-1").Run(ctx, []common.Dataset{common.DatasetWorldFloods})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Events[common.EventDropped]).To(Equal(1))
			Expect(svc.Submitted()).To(BeEmpty())
		})

		It("should report the missing layers", func() {
			report, err := newPipeline(memory.New(nil), "run-1").Index(ctx, common.DatasetWorldFloods)
			Expect(err).NotTo(HaveOccurred())
			Expect(report[common.KindS2]).To(BeEmpty())
			Expect(report[common.KindS1]).To(Equal([]string{key}))
			Expect(report[common.KindJRC]).To(Equal([]string{key}))
		})
	})

	Context("with vector ground truth", func() {
		const (
			layerName = "EMSR501_Flood_Delineation"
			index     = "20210615T101031_20210615T101550_T32TNR"
		)
		var (
			container string
			key       string
			vectors   fakeVectors
		)

		BeforeEach(func() {
			src, err := reg.Source(common.DatasetUNOSAT)
			Expect(err).NotTo(HaveOccurred())
			dirs = src.Dirs()
			container = filepath.Join(reg.Config().InputRoot, "UNOSAT_SAR", "downloaded", "EMSR501_floods.gdb")
			Expect(os.MkdirAll(container, 0755)).To(Succeed())
			key = registry.UNOSATKey(container, layerName)

			vectors = fakeVectors{layers: map[string][]*vector.Layer{
				"EMSR501_floods.gdb": {
					{Name: "EMSR501_Roads"},
					{
						Name:       layerName,
						Geometries: []string{opticalRegion.WKT()},
						Attributes: []map[string]string{{vector.DateField: "2021-06-15"}},
					},
				},
			}}
			tileIndex := filepath.Join(tmp, "tiles.geojson")
			Expect(ioutil.WriteFile(tileIndex, []byte(`{"type": "FeatureCollection", "features": [
				{"type": "Feature", "properties": {"identifier": "32TNR"},
				 "geometry": {"type": "Polygon", "coordinates": [[[10, 45], [10.5, 45], [10.5, 45.5], [10, 45.5], [10, 45]]]}},
				{"type": "Feature", "properties": {"identifier": "32TPR"},
				 "geometry": {"type": "Polygon", "coordinates": [[[11, 45], [11.5, 45], [11.5, 45.5], [11, 45.5], [11, 45]]]}}
			]}`), 0644)).To(Succeed())
			rcfg := reg.Config()
			rcfg.TileIndex = tileIndex
			reg = registry.New(rcfg)
		})

		It("should acquire the optical layer and rasterize the flood polygon", func() {
			svc := memory.New(producer(dirs), memory.WithLatency(2), memory.WithImages(imagery.CollectionOptical, imagery.Image{
				Index:     index,
				Start:     time.Date(2021, 6, 16, 10, 10, 31, 0, time.UTC),
				End:       time.Date(2021, 6, 16, 10, 15, 50, 0, time.UTC),
				Footprint: common.BBox{West: 10, South: 45, East: 10.5, North: 45.5},
			}))
			summary, err := newPipeline(svc, "run-1", pipeline.WithVectorSource(vectors)).Run(ctx, []common.Dataset{common.DatasetUNOSAT})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Complete()).To(BeTrue())
			Expect(summary.Events[common.EventDone]).To(Equal(1))

			var names []string
			for _, req := range svc.Submitted() {
				names = append(names, req.Name)
			}
			Expect(names).To(ConsistOf(
				key+"_32TNR_"+index+"_S2",
				key+"_32TNR_202106_Seasonal_JRC",
			))

			s2 := output(common.CanonicalName(common.DatasetUNOSAT, key, common.KindS2, "20210615T101031_20210615T101550", "32TNR"))
			grid, err := alignment.ReadGrid(s2)
			Expect(err).NotTo(HaveOccurred())
			Expect(grid.Projection).To(ContainSubstring("UTM zone 32N"))

			gt, gtGrid, err := readBand(output(common.CanonicalName(common.DatasetUNOSAT, key, common.KindGT, "32TNR")), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(gtGrid.Equal(grid)).To(BeTrue())
			Expect(distinct(gt)).To(ContainElement(1.0))

			_, jrcGrid, err := readBand(output(common.CanonicalName(common.DatasetUNOSAT, key, common.KindJRC, "32TNR")), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(jrcGrid.Equal(grid)).To(BeTrue())
			Expect(output(common.IndexName(key, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), "32TNR"))).To(BeAnExistingFile())

			By("writing the dictionary of the keys")
			b, err := ioutil.ReadFile(output(pipeline.KeysFile))
			Expect(err).NotTo(HaveOccurred())
			var keys map[string]string
			Expect(json.Unmarshal(b, &keys)).To(Succeed())
			Expect(keys).To(Equal(map[string]string{key: "EMSR501_floods_" + layerName}))

			By("submitting nothing the second time")
			summary, err = newPipeline(svc, "run-2", pipeline.WithVectorSource(vectors)).Run(ctx, []common.Dataset{common.DatasetUNOSAT})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Events[common.EventSkipped]).To(Equal(1))
			Expect(svc.Submitted()).To(HaveLen(2))
		})

		It("should refuse to run without tile index", func() {
			rcfg := reg.Config()
			rcfg.TileIndex = ""
			reg = registry.New(rcfg)
			_, err := newPipeline(memory.New(nil), "run-1", pipeline.WithVectorSource(vectors)).Run(ctx, []common.Dataset{common.DatasetUNOSAT})
			Expect(err).To(HaveOccurred())
			Expect(service.Fatal(err)).To(BeTrue())
		})
	})

	It("should stop on an unknown dataset", func() {
		_, err := newPipeline(memory.New(nil), "run-1").Run(ctx, []common.Dataset{common.Dataset(42)})
		var unknown service.UnknownDatasetError
		Expect(errors.As(err, &unknown)).To(BeTrue())
		Expect(service.EventScoped(err)).To(BeFalse())
	})
})
